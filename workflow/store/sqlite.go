package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLite is a single-file Store backend for development and
// single-process deployments: WAL mode, a connection pool sized for
// SQLite's one-writer model, and schema migration on open.
type SQLite struct {
	*sqlStore
}

// OpenSQLite opens (or creates) a SQLite database at path and runs the
// schema migration. Use ":memory:" for an ephemeral database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite supports exactly one writer; WAL mode lets readers proceed
	// without blocking on it.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{sqlStore: &sqlStore{db: db}}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}
