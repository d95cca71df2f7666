package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func tempDir(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

func TestWriteAndRead(t *testing.T) {
	s := tempDir(t)
	content := []byte(`{"cells":[]}`)
	if err := s.Write("nb.json", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("nb.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesRoot(t *testing.T) {
	s, err := NewFS(filepath.Join(t.TempDir(), "archive"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if err := s.Write("a.json", []byte("a")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "a.json")); err != nil {
		t.Errorf("file missing after write: %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := tempDir(t)
	_ = s.Write("del.json", []byte("bye"))
	if err := s.Delete("del.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.json"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestList(t *testing.T) {
	s := tempDir(t)
	_ = s.Write("b.json", []byte("b"))
	_ = s.Write("a.json", []byte("a"))
	_ = s.Write("readme.txt", []byte("not json"))
	_ = os.Mkdir(filepath.Join(s.Root(), "dir.json"), 0o755)

	names, err := s.List(".json")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"a.json", "b.json"}; !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestList_MissingDir(t *testing.T) {
	s, _ := NewFS(filepath.Join(t.TempDir(), "nope"))
	names, err := s.List(".json")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("names = %v, want none", names)
	}
}

func TestNamesConfinedToRoot(t *testing.T) {
	s := tempDir(t)
	cases := []string{
		"../../etc/passwd",
		"../outside.json",
		"/etc/shadow",
		"sub/file.json",
		"..",
		"",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for read of %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	s := tempDir(t)
	_ = s.Write("atomic.json", []byte("original"))
	if err := s.Write("atomic.json", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.json")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".mlops-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "mlops-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestCopyFile_PreservesContentAndModTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.ipynb")
	dst := filepath.Join(dir, "out", "dst.json")
	if err := os.WriteFile(src, []byte("{\"cells\": []}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "{\"cells\": []}\n" {
		t.Errorf("content = %q", got)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), mtime)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}
}

func TestCopyFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFile(filepath.Join(dir, "nope"), filepath.Join(dir, "x")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.json")
	dst := filepath.Join(dir, "archive", "a_1.json")
	_ = os.WriteFile(src, []byte("data"), 0o644)

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source still exists: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}
}

func TestFindFiles(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"a.py", "sub/b.py", "sub/c.txt", ".hidden/d.py", "e.ipynb"} {
		full := filepath.Join(root, p)
		_ = os.MkdirAll(filepath.Dir(full), 0o755)
		_ = os.WriteFile(full, []byte("x"), 0o644)
	}

	got, err := FindFiles(root, ".py", true)
	if err != nil {
		t.Fatalf("FindFiles: %v", err)
	}
	if want := []string{"a.py", filepath.Join("sub", "b.py")}; !reflect.DeepEqual(got, want) {
		t.Errorf("recursive = %v, want %v", got, want)
	}

	got, _ = FindFiles(root, ".py", false)
	if want := []string{"a.py"}; !reflect.DeepEqual(got, want) {
		t.Errorf("flat = %v, want %v", got, want)
	}
}

func TestSubdirectories(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"zeta", "alpha", ".git"} {
		_ = os.Mkdir(filepath.Join(root, d), 0o755)
	}
	_ = os.WriteFile(filepath.Join(root, "file"), nil, 0o644)

	got, err := Subdirectories(root)
	if err != nil {
		t.Fatalf("Subdirectories: %v", err)
	}
	if want := []string{"alpha", "zeta"}; !reflect.DeepEqual(got, want) {
		t.Errorf("dirs = %v, want %v", got, want)
	}
}
