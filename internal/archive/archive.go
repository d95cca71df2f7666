// Package archive manages the timestamped archive of consumed JSON notebooks.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/mlops-catalog/internal/apperr"
	"github.com/starford/mlops-catalog/internal/models"
	"github.com/starford/mlops-catalog/internal/storage"
)

const (
	// DirName is the archive directory created beside archived files.
	DirName = "archive"
	// TimestampLayout is the timestamp embedded in archived file names.
	TimestampLayout = "20060102_150405"
	// DefaultRetentionDays is how long Purge keeps archived files.
	DefaultRetentionDays = 30

	dateLayout = "20060102"
	jsonExt    = ".json"
)

// ParseName splits an archived file name into its parts. OriginalStem is
// the part of the stem before the first underscore. ok is false when the
// name has no parsable timestamp.
func ParseName(name string) (entry models.ArchiveEntry, ok bool) {
	stem := strings.TrimSuffix(name, jsonExt)
	parts := strings.Split(stem, "_")
	entry = models.ArchiveEntry{Name: name, OriginalStem: parts[0]}
	if len(parts) < 3 {
		return entry, false
	}
	ts, err := time.ParseInLocation(TimestampLayout, parts[len(parts)-2]+"_"+parts[len(parts)-1], time.Local)
	if err != nil {
		return entry, false
	}
	entry.Timestamp = ts
	return entry, true
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager operates on the archive directory of one JSON working directory.
type Manager struct {
	jsonDir string
	store   storage.Provider
	now     func() time.Time
	logger  *slog.Logger
}

// NewManager returns a manager for jsonDir/archive. Neither directory has
// to exist.
func NewManager(jsonDir string, logger *slog.Logger, opts ...Option) (*Manager, error) {
	abs, err := filepath.Abs(jsonDir)
	if err != nil {
		return nil, fmt.Errorf("archive: resolve dir: %w", err)
	}
	store, err := storage.NewFS(filepath.Join(abs, DirName))
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	m := &Manager{
		jsonDir: abs,
		store:   store,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Dir returns the absolute archive directory.
func (m *Manager) Dir() string {
	return m.store.Root()
}

// JSONDir returns the absolute working JSON directory.
func (m *Manager) JSONDir() string {
	return m.jsonDir
}

// Archive moves the JSON file at src to {stem}_{timestamp}.json in the
// archive directory, stamped with the manager's clock, and returns the new
// path. src no longer exists afterwards.
func (m *Manager) Archive(src string) (string, error) {
	if err := os.MkdirAll(m.Dir(), 0o755); err != nil {
		return "", fmt.Errorf("archive: create dir: %w", err)
	}
	base := filepath.Base(src)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	dst := filepath.Join(m.Dir(), stem+"_"+m.now().Format(TimestampLayout)+jsonExt)
	if err := storage.MoveFile(src, dst); err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	m.logger.Info("archive: archived", slog.String("source", src), slog.String("path", dst))
	return dst, nil
}

// List yields the archived file names. The directory is read each time the
// sequence is iterated.
func (m *Manager) List() iter.Seq[string] {
	return func(yield func(string) bool) {
		names, err := m.store.List(jsonExt)
		if err != nil {
			m.logger.Warn("archive: list failed", slog.String("error", err.Error()))
			return
		}
		for _, n := range names {
			if !yield(n) {
				return
			}
		}
	}
}

// Entries yields the parsed archive entries, in the order of List.
func (m *Manager) Entries() iter.Seq[models.ArchiveEntry] {
	return func(yield func(models.ArchiveEntry) bool) {
		for name := range m.List() {
			e, _ := ParseName(name)
			e.Path = filepath.Join(m.Dir(), name)
			if !yield(e) {
				return
			}
		}
	}
}

// Restore copies the archived file name back into the working JSON
// directory as {original stem}.json and returns the restored path. The
// archived copy is kept. An existing file at the destination is overwritten.
// The stem is cut at its first underscore, so my_report_20240101_120000.json
// restores as my.json.
func (m *Manager) Restore(name string) (string, error) {
	src, err := m.store.Path(name)
	if err != nil {
		return "", fmt.Errorf("archive: restore: %w", err)
	}
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("archive: restore %s: %w", name, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("archive: restore: %w", err)
	}
	entry, _ := ParseName(name)
	dst := filepath.Join(m.jsonDir, entry.OriginalStem+jsonExt)
	if err := storage.CopyFile(src, dst); err != nil {
		return "", fmt.Errorf("archive: restore: %w", err)
	}
	m.logger.Info("archive: restored", slog.String("name", name), slog.String("path", dst))
	return dst, nil
}

// Purge deletes archived files whose embedded date is before the calendar
// day retentionDays before now. Files without a parsable date are kept.
// It returns the number of deleted files; failed deletions are joined into
// the returned error and do not stop the purge.
func (m *Manager) Purge(retentionDays int) (int, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("archive: retention days must not be negative: %d", retentionDays)
	}
	now := m.now()
	c := now.AddDate(0, 0, -retentionDays)
	cutoff := time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, now.Location())

	var (
		deleted int
		errs    []error
	)
	for name := range m.List() {
		date, ok := archivedDate(name, now.Location())
		if !ok || !date.Before(cutoff) {
			continue
		}
		if err := m.store.Delete(name); err != nil {
			m.logger.Warn("archive: purge delete failed", slog.String("name", name), slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		m.logger.Debug("archive: purged", slog.String("name", name))
		deleted++
	}
	return deleted, errors.Join(errs...)
}

// archivedDate parses the date component, the second-to-last "_" part of
// the stem.
func archivedDate(name string, loc *time.Location) (time.Time, bool) {
	parts := strings.Split(strings.TrimSuffix(name, jsonExt), "_")
	if len(parts) < 2 {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation(dateLayout, parts[len(parts)-2], loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
