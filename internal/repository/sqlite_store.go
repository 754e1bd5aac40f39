package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"calendar-agent/internal/domain"
)

// SQLiteStore keeps every named store as rows of one table keyed by
// (store, prompt).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("repository: create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS context_entries (
		store TEXT NOT NULL,
		prompt TEXT NOT NULL,
		reply TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (store, prompt)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, name string) (domain.ContextEntries, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT prompt, reply FROM context_entries WHERE store = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("repository: query %s: %w", name, err)
	}
	defer rows.Close()

	entries := domain.ContextEntries{}
	for rows.Next() {
		var prompt, reply string
		if err := rows.Scan(&prompt, &reply); err != nil {
			return nil, fmt.Errorf("repository: scan %s: %w", name, err)
		}
		entries[prompt] = reply
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: iterate %s: %w", name, err)
	}
	return entries, nil
}

// Merge upserts every entry inside one transaction.
func (s *SQLiteStore) Merge(ctx context.Context, name string, entries domain.ContextEntries) error {
	if err := validateName(name); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	for prompt, reply := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO context_entries (store, prompt, reply, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(store, prompt) DO UPDATE SET
				reply = excluded.reply,
				updated_at = excluded.updated_at`,
			name, prompt, reply, now)
		if err != nil {
			return fmt.Errorf("repository: upsert into %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: commit merge: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM context_entries WHERE store = ?`, name); err != nil {
		return fmt.Errorf("repository: reset %s: %w", name, err)
	}
	return nil
}
