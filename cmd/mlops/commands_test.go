package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/mlops-catalog/internal/apperr"
	"github.com/starford/mlops-catalog/internal/testutil"
)

// testEnv isolates the commands from the caller's environment and returns
// the path of a config file pointing every location into temp dirs.
func testEnv(t *testing.T, extra string) (workDir, configPath string) {
	t.Helper()
	for _, k := range []string{
		"MLOPS_LOG_LEVEL", "MLOPS_WORKDIR", "MLOPS_NOTEBOOK_DIR",
		"VERTEX_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "VERTEX_REGION",
		"VERTEX_STAGING_BUCKET", "VERTEX_CONTAINER_REGISTRY",
	} {
		t.Setenv(k, "")
	}
	workDir, _ = testutil.TestWorkspace(t)
	base := t.TempDir()
	t.Setenv("MLOPS_BASE_PATH", base)
	yml := "app:\n  log_level: error\n  base_path: " + base + "\n" +
		"workspace:\n  dir: " + workDir + "\n  notebook_dir: " + filepath.Join(base, "notebooks") + "\n" +
		extra
	configPath = testutil.WriteFile(t, base, "config.yaml", yml)
	return workDir, configPath
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newApp(strings.NewReader(""), &out)
	err := cmd.Run(context.Background(), append([]string{"mlops", "--config", configPath}, args...))
	return out.String(), err
}

func TestConvertCommand(t *testing.T) {
	workDir, cfg := testEnv(t, "")
	src := testutil.WriteFile(t, workDir, "train.py", "x = 1\n")
	dst := filepath.Join(workDir, "train.ipynb")

	out, err := run(t, cfg, "convert", src, dst)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !strings.Contains(out, "converted") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("target missing: %v", err)
	}
}

func TestConvertCommand_Unsupported(t *testing.T) {
	workDir, cfg := testEnv(t, "")
	src := testutil.WriteFile(t, workDir, "train.py", "x = 1\n")
	if _, err := run(t, cfg, "convert", src, filepath.Join(workDir, "train.json")); err == nil {
		t.Fatal("expected unsupported conversion error")
	}
}

func TestConvertCommand_MissingArgs(t *testing.T) {
	_, cfg := testEnv(t, "")
	if _, err := run(t, cfg, "convert", "only-one.py"); err == nil {
		t.Fatal("expected usage error")
	}
}

func TestArchiveCommands(t *testing.T) {
	workDir, cfg := testEnv(t, "")
	jsonDir := filepath.Join(workDir, "notebook_jsons")
	testutil.WriteFile(t, jsonDir, "archive/report_20240101_120000.json", `{"cells": []}`)
	testutil.WriteFile(t, jsonDir, "archive/old_20000101_000000.json", `{}`)

	out, err := run(t, cfg, "archive", "list")
	if err != nil {
		t.Fatalf("archive list: %v", err)
	}
	if !strings.Contains(out, "report_20240101_120000.json\treport\t2024-01-01 12:00:00") {
		t.Errorf("list output = %q", out)
	}

	if _, err := run(t, cfg, "archive", "restore", "report_20240101_120000.json"); err != nil {
		t.Fatalf("archive restore: %v", err)
	}
	if _, err := os.Stat(filepath.Join(jsonDir, "report.json")); err != nil {
		t.Errorf("restored file missing: %v", err)
	}

	out, err = run(t, cfg, "archive", "purge", "--days", "30")
	if err != nil {
		t.Fatalf("archive purge: %v", err)
	}
	if !strings.Contains(out, "deleted") {
		t.Errorf("purge output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(jsonDir, "archive", "old_20000101_000000.json")); !os.IsNotExist(err) {
		t.Errorf("old archive should be purged, stat err = %v", err)
	}
}

func TestArchiveList_Empty(t *testing.T) {
	_, cfg := testEnv(t, "")
	out, err := run(t, cfg, "archive", "list")
	if err != nil {
		t.Fatalf("archive list: %v", err)
	}
	if !strings.Contains(out, "No archives found.") {
		t.Errorf("output = %q", out)
	}
}

func TestModelCommands(t *testing.T) {
	workDir, cfg := testEnv(t, "")
	model := testutil.WriteFile(t, workDir, "model.yaml", "name: churn\nversion: \"1\"\nframework: sklearn\n")

	out, err := run(t, cfg, "model", "register", "--dry-run", model)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, "valid: churn@1") {
		t.Errorf("dry-run output = %q", out)
	}

	out, err = run(t, cfg, "model", "list")
	if err != nil {
		t.Fatalf("model list: %v", err)
	}
	if !strings.Contains(out, "No models registered.") {
		t.Errorf("dry run must not register, list = %q", out)
	}

	if _, err := run(t, cfg, "model", "register", model); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := run(t, cfg, "model", "register", model); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	out, err = run(t, cfg, "model", "list", "--name", "churn")
	if err != nil {
		t.Fatalf("model list: %v", err)
	}
	if !strings.Contains(out, "churn\t1\tsklearn") {
		t.Errorf("list output = %q", out)
	}
}

func TestModelShow(t *testing.T) {
	workDir, cfg := testEnv(t, "")
	model := testutil.WriteFile(t, workDir, "model.yaml",
		"name: churn\nversion: \"2\"\nframework: xgboost\nartifacts_path: gs://models/churn/2\nmetrics:\n  auc: 0.91\n")
	if _, err := run(t, cfg, "model", "register", model); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := run(t, cfg, "model", "show", "churn", "2")
	if err != nil {
		t.Fatalf("model show: %v", err)
	}
	for _, want := range []string{"name: churn", "framework: xgboost", "artifacts_path: gs://models/churn/2", "auc: 0.91"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, cfg, "model", "show", "churn", "9"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("show unknown version = %v, want ErrNotFound", err)
	}
	if _, err := run(t, cfg, "model", "show", "churn"); err == nil {
		t.Error("expected usage error without a version")
	}
}

func TestExpCommands(t *testing.T) {
	_, cfg := testEnv(t, "")

	if _, err := run(t, cfg, "exp", "params", "baseline", "lr=0.01", "optimizer=adam"); err != nil {
		t.Fatalf("exp params: %v", err)
	}
	if _, err := run(t, cfg, "exp", "log", "--step", "2", "baseline", "loss", "0.25"); err != nil {
		t.Fatalf("exp log: %v", err)
	}
	if _, err := run(t, cfg, "exp", "log", "baseline", "loss", "abc"); err == nil {
		t.Error("expected error for non-numeric metric")
	}

	out, err := run(t, cfg, "exp", "show", "baseline")
	if err != nil {
		t.Fatalf("exp show: %v", err)
	}
	for _, want := range []string{"lr: 0.01", "optimizer: adam", "loss\tstep=2\t0.25"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestVertexShow(t *testing.T) {
	_, cfg := testEnv(t, "vertex:\n  project_id: demo\n")
	out, err := run(t, cfg, "vertex", "show")
	if err != nil {
		t.Fatalf("vertex show: %v", err)
	}
	for _, want := range []string{"project_id: demo", "region: us-central1", "staging_bucket_uri: gs://demo-vertex-staging"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestVertexShow_VertexConfigFile(t *testing.T) {
	workDir, cfg := testEnv(t, "vertex:\n  project_id: demo\n")
	t.Setenv("VERTEX_REGION", "europe-west1")
	vc := testutil.WriteFile(t, workDir, "vertex_config.yaml",
		"project_id: from-file\nregion: us-west1\ndefault_container_registry: gcr.io/test\n")

	out, err := run(t, cfg, "vertex", "show", "--vertex-config", vc)
	if err != nil {
		t.Fatalf("vertex show: %v", err)
	}
	for _, want := range []string{"project_id: from-file", "region: us-west1", "default_container_registry: gcr.io/test", "staging_bucket_uri: gs://from-file-vertex-staging"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	_, err = run(t, cfg, "vertex", "show", "--vertex-config", filepath.Join(workDir, "missing.yaml"))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing vertex config = %v, want ErrNotFound", err)
	}
}

func TestVertexShow_ExpandsBasePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	_, cfg := testEnv(t, "vertex:\n  project_id: demo\n  mlops_base_path: ~/vx\n")

	out, err := run(t, cfg, "vertex", "show")
	if err != nil {
		t.Fatalf("vertex show: %v", err)
	}
	want := filepath.Join(home, "vx")
	if !strings.Contains(out, "mlops_base_path: "+want) {
		t.Errorf("output missing expanded base path %q:\n%s", want, out)
	}
	if info, err := os.Stat(want); err != nil || !info.IsDir() {
		t.Errorf("base path not created: %v", err)
	}
}

func TestVertexShow_RequiresProject(t *testing.T) {
	_, cfg := testEnv(t, "")
	if _, err := run(t, cfg, "vertex", "show"); err == nil {
		t.Fatal("expected project validation error")
	}
}

func TestRoundtripCommand(t *testing.T) {
	workDir, cfg := testEnv(t, "")
	empty := testutil.WriteFile(t, workDir, "empty.py", "")
	code := testutil.WriteFile(t, workDir, "code.py", "x = 1\n")

	out, err := run(t, cfg, "roundtrip", empty)
	if err != nil {
		t.Fatalf("roundtrip: %v", err)
	}
	if !strings.Contains(out, "no differences") {
		t.Errorf("output = %q", out)
	}

	out, err = run(t, cfg, "roundtrip", code)
	if err != nil {
		t.Fatalf("roundtrip: %v", err)
	}
	if out != " x = 1\n+\n" {
		t.Errorf("diff = %q", out)
	}
}

func TestNotebooksCommand_ExitsOnEOF(t *testing.T) {
	_, cfg := testEnv(t, "")
	if _, err := run(t, cfg, "notebooks"); err != nil {
		t.Fatalf("notebooks: %v", err)
	}
}
