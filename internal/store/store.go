// Package store is the durable, table-level persistence layer for tasks.
// It knows nothing about the state machine's legality rules; it only
// executes the guarded SQL that package queue composes.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id              TEXT PRIMARY KEY,
	state           INTEGER NOT NULL,
	schedule_at     INTEGER NOT NULL,
	attempt_count   INTEGER NOT NULL DEFAULT 0,
	attempted_at    INTEGER,
	attempted_error TEXT NOT NULL DEFAULT '[]',
	finalized_at    INTEGER,
	items           TEXT NOT NULL DEFAULT '[]',
	item_count      INTEGER NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_state_schedule_at ON tasks (state, schedule_at);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks (created_at);
`

// Store wraps a *sql.DB handle to the tasks table. It is safe for
// concurrent use; every method opens its own short transaction.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dsn and applies the
// schema idempotently. A single open connection is enforced because
// SQLite serializes writers anyway and the queue's guarded UPDATE
// statements rely on no other connection racing the same *sql.DB.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// New wraps an already-open *sql.DB, applying the schema idempotently.
// Used by tests that want to share one in-memory connection.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for callers (package queue) that need
// to begin their own transactions spanning multiple store calls.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}
