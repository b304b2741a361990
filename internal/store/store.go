package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// MemoryPath opens a private in-memory journal.
const MemoryPath = ":memory:"

// pragmas are applied by the driver on every connection it opens.
var pragmas = []struct{ param, value string }{
	{"_journal_mode", "WAL"},
	{"_synchronous", "NORMAL"},
	{"_busy_timeout", "5000"},
	{"_foreign_keys", "on"},
}

// migrations upgrade a journal one user_version at a time: migrations[i]
// takes a journal from version i to i+1. A fresh journal gets its tables
// from schema.sql and then runs all of them, so each must be idempotent.
var migrations = []func(ctx context.Context, tx *sql.Tx) error{
	indexLogEntryKinds, // 1
}

// Store is the session journal.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite journal at path and brings its schema
// up to date. See the package documentation for the connection settings.
//
// Open(MemoryPath) gives a journal that lives as long as the Store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer. A single connection also keeps an in-memory
	// journal alive between statements.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// dsn appends the connection pragmas to path as go-sqlite3 parameters.
func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Set(p.param, p.value)
	}
	return path + "?" + q.Encode()
}

// migrate creates missing tables and runs the migrations the journal has
// not seen yet, each in its own transaction together with its version bump.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	for v := version; v < len(migrations); v++ {
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if err := migrations[v](ctx, tx); err != nil {
				return err
			}
			// PRAGMA does not take bind parameters.
			_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1))
			return err
		})
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	return nil
}

// indexLogEntryKinds lets CountEntries count errors without a table scan.
func indexLogEntryKinds(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_log_entries_kind
		ON log_entries(session_id, kind)
	`)
	return err
}

// inTx runs fn in a transaction, rolling back on error.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
