// Package testutil provides shared test helpers for setting up workspaces and registries.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/mlops-catalog/internal/registry"
	"github.com/starford/mlops-catalog/internal/workflow"
)

// TestDB creates a temporary registry database that is automatically cleaned up.
func TestDB(t *testing.T) *registry.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "mlops-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := registry.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary working directory with an empty JSON
// notebook directory and returns both paths.
func TestWorkspace(t *testing.T) (workDir, jsonDir string) {
	t.Helper()
	workDir = t.TempDir()
	jsonDir = filepath.Join(workDir, workflow.JSONDirName)
	if err := os.MkdirAll(jsonDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return workDir, jsonDir
}

// WriteFile writes content to dir/rel, creating parent directories.
func WriteFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	p := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}
