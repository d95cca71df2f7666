package registry

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/starford/mlops-catalog/internal/apperr"
	"github.com/starford/mlops-catalog/internal/models"
)

// Store defines the registry operations. Consumers should depend on this
// interface rather than the concrete *DB type.
type Store interface {
	Register(m models.ModelMetadata) error
	Get(name, version string) (*models.ModelMetadata, error)
	List(name string) ([]models.ModelMetadata, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// Register inserts a new model version. A zero CreatedAt is set to now.
// Registering an existing (name, version) fails with apperr.ErrAlreadyExists.
func (db *DB) Register(m models.ModelMetadata) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	params, err := json.Marshal(nonNilMap(m.Params))
	if err != nil {
		return fmt.Errorf("registry: encode params: %w", err)
	}
	metrics, err := json.Marshal(nonNilMap(m.Metrics))
	if err != nil {
		return fmt.Errorf("registry: encode metrics: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO models (name, version, created_at, framework, params, metrics, artifacts_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.Name, m.Version, m.CreatedAt, m.Framework, string(params), string(metrics), m.ArtifactsPath)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("registry: model %s@%s: %w", m.Name, m.Version, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("registry: insert model: %w", err)
	}
	return nil
}

// Get returns one model version.
func (db *DB) Get(name, version string) (*models.ModelMetadata, error) {
	row := db.conn.QueryRow(`
		SELECT name, version, created_at, framework, params, metrics, artifacts_path
		FROM models WHERE name = ? AND version = ?
	`, name, version)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("registry: model %s@%s: %w", name, version, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// List returns registered models ordered by name and creation time. An
// empty name lists every model.
func (db *DB) List(name string) ([]models.ModelMetadata, error) {
	query := `SELECT name, version, created_at, framework, params, metrics, artifacts_path FROM models`
	var args []any
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY name, created_at, version`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	defer rows.Close()

	var out []models.ModelMetadata
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanModel(s scanner) (*models.ModelMetadata, error) {
	var (
		m       models.ModelMetadata
		params  string
		metrics string
	)
	if err := s.Scan(&m.Name, &m.Version, &m.CreatedAt, &m.Framework, &params, &metrics, &m.ArtifactsPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("registry: scan: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &m.Params); err != nil {
		return nil, fmt.Errorf("registry: decode params: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &m.Metrics); err != nil {
		return nil, fmt.Errorf("registry: decode metrics: %w", err)
	}
	return &m, nil
}

func nonNilMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}
