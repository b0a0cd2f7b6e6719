package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// mysqlSchema mirrors sqlSchema with MySQL's constraints: indexed
// columns need a bounded VARCHAR instead of TEXT.
const mysqlSchema = `
CREATE TABLE IF NOT EXISTS workflows (
	id VARCHAR(191) PRIMARY KEY,
	version INTEGER NOT NULL,
	nodes TEXT NOT NULL,
	edges TEXT NOT NULL,
	metadata TEXT
);
CREATE TABLE IF NOT EXISTS workflow_executions (
	id VARCHAR(191) PRIMARY KEY,
	workflow_id VARCHAR(191) NOT NULL,
	status VARCHAR(32) NOT NULL,
	started_at BIGINT,
	completed_at BIGINT,
	trigger_source TEXT,
	initiator_id TEXT,
	result TEXT,
	last_error_kind TEXT,
	last_error_node TEXT,
	last_error_message TEXT
);
CREATE TABLE IF NOT EXISTS node_executions (
	execution_id VARCHAR(191) NOT NULL,
	node_id VARCHAR(191) NOT NULL,
	status VARCHAR(32) NOT NULL,
	attempts INTEGER NOT NULL,
	started_at BIGINT,
	completed_at BIGINT,
	input TEXT,
	output TEXT,
	error_kind TEXT,
	error_message TEXT,
	PRIMARY KEY (execution_id, node_id)
);
CREATE TABLE IF NOT EXISTS execution_logs (
	seq BIGINT NOT NULL,
	execution_id VARCHAR(191) NOT NULL,
	node_id VARCHAR(191),
	level VARCHAR(16) NOT NULL,
	message TEXT NOT NULL,
	data TEXT,
	timestamp BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS workflow_pauses (
	execution_id VARCHAR(191) NOT NULL,
	node_id VARCHAR(191) NOT NULL,
	created_at BIGINT NOT NULL,
	PRIMARY KEY (execution_id, node_id)
);
CREATE TABLE IF NOT EXISTS circuit_breaker_state (
	` + "`key`" + ` VARCHAR(191) PRIMARY KEY,
	system VARCHAR(191) NOT NULL,
	principal VARCHAR(191) NOT NULL,
	operation VARCHAR(191) NOT NULL,
	state VARCHAR(32) NOT NULL,
	consecutive_failures INTEGER NOT NULL,
	opened_at BIGINT,
	last_success_at BIGINT
);
CREATE TABLE IF NOT EXISTS block_executions (
	id VARCHAR(191) PRIMARY KEY,
	execution_id VARCHAR(191) NOT NULL,
	node_id VARCHAR(191) NOT NULL,
	attempt INTEGER NOT NULL,
	block_type VARCHAR(64) NOT NULL,
	result VARCHAR(32) NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at BIGINT NOT NULL
)`

// MySQL is a multi-worker Store backend over go-sql-driver/mysql. It
// shares every query with the other SQL stores, using the same `?`
// placeholder style SQLite uses, and applies mysqlSchema instead of
// sqlSchema.
type MySQL struct {
	*sqlStore
}

// OpenMySQL connects to dsn (a go-sql-driver DSN, e.g.
// "user:pass@tcp(host:3306)/flowengine?parseTime=true") and runs the
// schema migration.
func OpenMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQL{sqlStore: &sqlStore{db: db, schema: mysqlSchema}}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}
