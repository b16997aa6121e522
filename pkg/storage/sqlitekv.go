package storage

import (
	"database/sql"
	"fmt"

	// SQLite driver, registered as "sqlite3".
	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteKV stores lists in a single kv table, values YAML-encoded. It exists
// for installations that already keep tool state in a SQLite file; FileKV is
// the default backend.
type SQLiteKV struct {
	db *sql.DB
}

// NewSQLiteKV opens (and if needed initializes) the database at path.
func NewSQLiteKV(path string) (*SQLiteKV, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return &SQLiteKV{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteKV) Close() error {
	return s.db.Close()
}

// Load implements the KV interface.
func (s *SQLiteKV) Load(key string) ([]string, error) {
	var raw string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", key, err)
	}

	var values []string
	if err := yaml.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return values, nil
}

// Save implements the KV interface.
func (s *SQLiteKV) Save(key string, values []string) error {
	if values == nil {
		values = []string{}
	}
	raw, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	_, err = s.db.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to save %q: %w", key, err)
	}
	return nil
}
