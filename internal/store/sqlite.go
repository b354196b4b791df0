package store

import (
	"context"
	"database/sql"
	"errors"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is a Storage backed by a SQLite database file.
// Use ":memory:" as the path for an ephemeral database.
type SQLite struct {
	db *sql.DB
}

var _ Storage = (*SQLite)(nil)

// OpenSQLite creates or opens a SQLite database at the given path and
// applies the schema. Safe to call repeatedly on the same path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports only one writer at a time; a single connection
	// avoids SQLITE_BUSY on the write path.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Get returns the bytes stored under id, or found=false if absent.
func (s *SQLite) Get(ctx context.Context, id string) ([]byte, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM node_state WHERE persistence_id = ?`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", id, err)
	}
	return []byte(data), true, nil
}

// Set stores data under id, replacing any previous value.
func (s *SQLite) Set(ctx context.Context, id string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO node_state (persistence_id, value, updated_seq)
		 VALUES (?, ?, 0)
		 ON CONFLICT(persistence_id) DO UPDATE SET
		   value = excluded.value,
		   updated_seq = node_state.updated_seq + 1`,
		id, string(data),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}
