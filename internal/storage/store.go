// Package storage persists paper records, categorizers, and scheduler state
// in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound indicates no record with the requested id exists.
	ErrNotFound = errors.New("record not found")

	// ErrStoreCommit indicates a write transaction was rejected.
	ErrStoreCommit = errors.New("store commit failed")
)

// Store wraps a SQLite database connection.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			venue TEXT NOT NULL DEFAULT '',
			abstract TEXT NOT NULL DEFAULT '',
			pub_year INTEGER NOT NULL DEFAULT 0,
			pub_month INTEGER NOT NULL DEFAULT 0,
			pub_day INTEGER NOT NULL DEFAULT 0,
			authors_json TEXT NOT NULL DEFAULT '[]',
			ids_json TEXT NOT NULL DEFAULT '{}',
			tags_json TEXT NOT NULL DEFAULT '[]',
			folders_json TEXT NOT NULL DEFAULT '[]',
			main_path TEXT NOT NULL DEFAULT '',
			supplement_paths_json TEXT NOT NULL DEFAULT '[]',
			flagged INTEGER NOT NULL DEFAULT 0,
			note TEXT NOT NULL DEFAULT '',
			doi TEXT,
			arxiv_id TEXT,
			added_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_papers_doi ON papers(doi) WHERE doi IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_papers_arxiv ON papers(arxiv_id) WHERE arxiv_id IS NOT NULL;

		-- Full-text search over bibliographic fields
		CREATE VIRTUAL TABLE IF NOT EXISTS papers_fts USING fts5(
			id UNINDEXED,
			title,
			abstract,
			authors_text
		);

		-- Tags and folders with live-member counts
		CREATE TABLE IF NOT EXISTS categorizers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0)
		);

		-- Key/value state such as the scheduler's last run
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	_, err := db.Exec(schema)
	return err
}

// Within runs fn inside one transaction. If fn fails the transaction is
// rolled back; if the commit itself fails the error wraps ErrStoreCommit.
func (s *Store) Within(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", ErrStoreCommit, err)
	}

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreCommit, err)
	}
	return nil
}

// Tx is a write transaction.
type Tx struct {
	tx *sql.Tx
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
