// Package sqlite is the embedded trade-record store used when no PostgreSQL
// DSN is configured. It relies on the pure-Go modernc driver, so the binary
// stays CGo free.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"solana-trade-engine/internal/storage/migrations"
)

// DB wraps *sql.DB opened with the sqlite driver.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies the embedded
// migrations. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// single writer; also keeps a :memory: database on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db}, nil
}

// isDuplicateKeyError checks if err is a primary key or unique violation.
func isDuplicateKeyError(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
