package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres is a multi-worker Store backend over jackc/pgx/v5. Unlike
// SQLite it permits concurrent writers, so parallel worker processes can
// share nothing but the database.
type Postgres struct {
	*sqlStore
}

// OpenPostgres connects to dsn (a standard Postgres connection string)
// and runs the schema migration.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Postgres{sqlStore: &sqlStore{db: db, ph: func(n int) string { return fmt.Sprintf("$%d", n) }}}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}
