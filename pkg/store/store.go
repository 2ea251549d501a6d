// Package store wraps a single-writer, embedded SQL file shared by
// ChangeLog and JobQueue. It centralizes connection setup (a single
// WAL-mode connection, so every transaction serializes the way the
// "one writer per file" model requires, while WAL still lets readers
// proceed without blocking on a writer) and a small transaction-running
// helper used by both callers.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB is an opened store file.
type DB struct {
	*sqlx.DB
}

// Open opens (creating if absent) a SQLite file at path. A single
// connection is kept open: the data model promises one writer per file,
// and serializing all access through one connection makes every
// transaction's read-committed view trivially consistent without
// depending on a particular journal mode.
func Open(path string) (*DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set foreign_keys: %w", err)
	}
	return &DB{db}, nil
}

// WithTx runs fn inside an exclusive transaction, committing on success
// and rolling back if fn returns an error or panics.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := d.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// WithReadTx runs fn through WithTx. The transaction is not read-only
// (jobqueue's enumeration promotes ready rows inside it), and since the
// DB keeps a single connection, concurrent callers wait for each other.
func (d *DB) WithReadTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return d.WithTx(ctx, fn)
}
