// Package store is the shared SQLite-backed persistence layer for
// workflow run/step audit records and aggregator cache entries. It
// wraps database/sql with the pure-Go modernc.org/sqlite driver so the
// fabric has no cgo dependency, and serializes writes with a single
// mutex since sqlite only allows one writer at a time.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	name        TEXT PRIMARY KEY,
	definition  TEXT NOT NULL,
	enabled     INTEGER NOT NULL DEFAULT 1,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_runs (
	id           TEXT PRIMARY KEY,
	workflow     TEXT NOT NULL,
	trigger_event TEXT,
	status       TEXT NOT NULL,
	payload      TEXT,
	started_at   TEXT NOT NULL,
	finished_at  TEXT,
	error        TEXT
);
CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow ON workflow_runs(workflow);
CREATE INDEX IF NOT EXISTS idx_workflow_runs_status ON workflow_runs(status);

CREATE TABLE IF NOT EXISTS workflow_steps (
	run_id      TEXT NOT NULL,
	step_index  INTEGER NOT NULL,
	server      TEXT NOT NULL,
	tool        TEXT NOT NULL,
	arguments   TEXT,
	result      TEXT,
	status      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	error       TEXT,
	PRIMARY KEY (run_id, step_index)
);
CREATE INDEX IF NOT EXISTS idx_workflow_steps_run ON workflow_steps(run_id);

CREATE TABLE IF NOT EXISTS cache (
	category   TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	PRIMARY KEY (category, key)
);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache(expires_at);
`

// DB wraps a *sql.DB with a write mutex. sqlite serializes writers at
// the database-file level anyway; holding one in process avoids
// SQLITE_BUSY retries under concurrent workflow runs.
type DB struct {
	sql *sql.DB
	mu  sync.Mutex
}

// Open opens (creating if necessary) the sqlite database at path and
// applies the schema. Use ":memory:" for an ephemeral, test-only
// database.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{sql: conn}, nil
}

// Close releases the underlying database handle.
func (d *DB) Close() error {
	return d.sql.Close()
}

// WithWriteLock serializes fn against every other writer using this DB.
func (d *DB) WithWriteLock(fn func(*sql.DB) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.sql)
}

// Read runs fn without taking the write lock, for read-only queries.
// Open limits the pool to a single connection, so queries issued
// through Read and WithWriteLock still run one at a time.
func (d *DB) Read(fn func(*sql.DB) error) error {
	return fn(d.sql)
}
