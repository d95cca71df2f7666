// Package registry provides the SQLite-backed model registry.
package registry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS models (
	name           TEXT NOT NULL,
	version        TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	framework      TEXT NOT NULL DEFAULT '',
	params         TEXT NOT NULL DEFAULT '{}',
	metrics        TEXT NOT NULL DEFAULT '{}',
	artifacts_path TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (name, version)
);

CREATE INDEX IF NOT EXISTS idx_models_created_at ON models(created_at);
`

// DB wraps a sql.DB with registry operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the registry database at path and applies the
// schema. The parent directory is created if needed.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("registry: create dir: %w", err)
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("registry: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
