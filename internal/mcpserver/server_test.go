package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mlops-catalog/internal/models"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	root := t.TempDir()
	srv, err := New(root, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	srv.now = func() time.Time { return time.Date(2024, 2, 10, 8, 30, 0, 0, time.Local) }
	return srv, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "convert_notebook":
		result, err = srv.convertNotebook(ctx, req)
	case "get_script_format":
		result, err = srv.getScriptFormat(ctx, req)
	case "list_archives":
		result, err = srv.listArchives(ctx, req)
	case "restore_archive":
		result, err = srv.restoreArchive(ctx, req)
	case "purge_archives":
		result, err = srv.purgeArchives(ctx, req)
	case "roundtrip_diff":
		result, err = srv.roundtripDiff(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestConvertScriptToNotebook(t *testing.T) {
	srv, root := testServer(t)
	writeFile(t, root, "train.py", "x = 1\n#%% md\n# Notes\n")

	r := callTool(t, srv, "convert_notebook", map[string]interface{}{
		"source": "train.py",
		"target": "out/train.ipynb",
	})
	if r.IsError {
		t.Fatalf("convert failed: %s", resultText(r))
	}
	var res convertResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Target != "out/train.ipynb" || res.Checksum == "" {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, "out", "train.ipynb")); err != nil {
		t.Errorf("target missing: %v", err)
	}
}

func TestConvertJSONArchives(t *testing.T) {
	srv, root := testServer(t)
	writeFile(t, root, "notebook_jsons/report.json", `{"cells": [], "nbformat": 4}`)

	r := callTool(t, srv, "convert_notebook", map[string]interface{}{
		"source": "notebook_jsons/report.json",
		"target": "report.ipynb",
	})
	if r.IsError {
		t.Fatalf("convert failed: %s", resultText(r))
	}
	var res convertResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if res.ArchivePath != "notebook_jsons/archive/report_20240210_083000.json" {
		t.Errorf("archive path = %q", res.ArchivePath)
	}

	r = callTool(t, srv, "list_archives", map[string]interface{}{})
	var entries []models.ArchiveEntry
	if err := json.Unmarshal([]byte(resultText(r)), &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != 1 || entries[0].OriginalStem != "report" {
		t.Fatalf("entries = %+v", entries)
	}

	r = callTool(t, srv, "restore_archive", map[string]interface{}{"name": entries[0].Name})
	if r.IsError {
		t.Fatalf("restore failed: %s", resultText(r))
	}
	if text := resultText(r); text != "restored: notebook_jsons/report.json" {
		t.Errorf("restore result = %q", text)
	}
}

func TestConvertRejectsEscapingPaths(t *testing.T) {
	srv, _ := testServer(t)
	for _, args := range []map[string]interface{}{
		{"source": "../outside.py", "target": "a.ipynb"},
		{"source": "a.py", "target": "/tmp/a.ipynb"},
	} {
		r := callTool(t, srv, "convert_notebook", args)
		if !r.IsError {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestConvertUnsupported(t *testing.T) {
	srv, root := testServer(t)
	writeFile(t, root, "a.py", "x = 1\n")
	r := callTool(t, srv, "convert_notebook", map[string]interface{}{"source": "a.py", "target": "a.json"})
	if !r.IsError || !strings.Contains(resultText(r), "unsupported conversion") {
		t.Errorf("expected unsupported conversion error, got %q", resultText(r))
	}
}

func TestConvertMissingArgs(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "convert_notebook", map[string]interface{}{"source": "a.py"})
	if !r.IsError {
		t.Error("expected error for missing target")
	}
}

func TestListArchivesEmpty(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_archives", map[string]interface{}{})
	if text := resultText(r); text != "[]" {
		t.Errorf("list = %q, want []", text)
	}
}

func TestRestoreMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "restore_archive", map[string]interface{}{"name": "nope_20240101_000000.json"})
	if !r.IsError {
		t.Error("expected error for missing archive")
	}
}

func TestPurgeArchives(t *testing.T) {
	srv, root := testServer(t)
	writeFile(t, root, "notebook_jsons/archive/old_20231201_000000.json", "{}")
	writeFile(t, root, "notebook_jsons/archive/new_20240201_000000.json", "{}")

	r := callTool(t, srv, "purge_archives", map[string]interface{}{})
	if text := resultText(r); text != "deleted: 1" {
		t.Errorf("purge = %q", text)
	}

	r = callTool(t, srv, "purge_archives", map[string]interface{}{"retention_days": float64(1)})
	if text := resultText(r); text != "deleted: 1" {
		t.Errorf("purge(1) = %q", text)
	}
}

func TestRoundtripDiff(t *testing.T) {
	srv, root := testServer(t)
	writeFile(t, root, "empty.py", "")
	writeFile(t, root, "code.py", "x = 1\n")

	r := callTool(t, srv, "roundtrip_diff", map[string]interface{}{"path": "empty.py"})
	if r.IsError || resultText(r) != "" {
		t.Errorf("empty diff = %q", resultText(r))
	}

	// A code cell gains one trailing blank line.
	r = callTool(t, srv, "roundtrip_diff", map[string]interface{}{"path": "code.py"})
	if !strings.Contains(resultText(r), "+\n") {
		t.Errorf("code diff = %q", resultText(r))
	}

	r = callTool(t, srv, "roundtrip_diff", map[string]interface{}{"path": "notes.txt"})
	if !r.IsError {
		t.Error("expected error for non-script path")
	}
}

func TestGetScriptFormat(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_script_format", map[string]interface{}{})
	if !strings.Contains(resultText(r), "#%% md") {
		t.Error("contract should mention the marker line")
	}
}
