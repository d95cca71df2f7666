// Package converter converts notebook documents between script, notebook
// and JSON files, archiving JSON sources it consumes.
package converter

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/mlops-catalog/internal/apperr"
	"github.com/starford/mlops-catalog/internal/archive"
	"github.com/starford/mlops-catalog/internal/checksum"
	"github.com/starford/mlops-catalog/internal/notebook"
	"github.com/starford/mlops-catalog/internal/storage"
)

// File extensions understood by the converter.
const (
	ExtScript   = ".py"
	ExtNotebook = ".ipynb"
	ExtJSON     = ".json"
)

// Targets lists the target extensions offered for each source extension.
var Targets = map[string][]string{
	ExtScript:   {ExtNotebook},
	ExtNotebook: {ExtScript, ExtJSON},
	ExtJSON:     {ExtNotebook},
}

type conversion func(c *Converter, src, dst string, res *Result) error

var conversions = map[[2]string]conversion{
	{ExtScript, ExtNotebook}: scriptToNotebook,
	{ExtNotebook, ExtScript}: notebookToScript,
	{ExtNotebook, ExtJSON}:   copyVerbatim,
	{ExtJSON, ExtNotebook}:   jsonToNotebook,
}

// Result describes a finished conversion.
type Result struct {
	Source   string
	Target   string
	Checksum string
	// ArchivePath is set when the JSON source was archived.
	ArchivePath string
	// ArchiveErr is set when the conversion succeeded but archiving the
	// JSON source failed. It wraps apperr.ErrArchive.
	ArchiveErr error
}

// Option configures a Converter.
type Option func(*Converter)

// WithClock sets the clock used for archive timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Converter) {
		c.now = now
	}
}

// Converter performs conversions between the supported file formats.
type Converter struct {
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Converter.
func New(logger *slog.Logger, opts ...Option) *Converter {
	c := &Converter{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Supported reports whether a conversion from srcExt to dstExt exists.
func Supported(srcExt, dstExt string) bool {
	if srcExt == dstExt {
		return true
	}
	_, ok := conversions[[2]string{srcExt, dstExt}]
	return ok
}

// Convert reads src and writes the converted document to dst. Formats are
// taken from the file extensions. Unsupported pairs fail before anything is
// read or written.
func (c *Converter) Convert(src, dst string) (*Result, error) {
	srcExt, dstExt := filepath.Ext(src), filepath.Ext(dst)

	conv := copyVerbatim
	if srcExt != dstExt {
		var ok bool
		conv, ok = conversions[[2]string{srcExt, dstExt}]
		if !ok {
			return nil, fmt.Errorf("converter: %w", &apperr.UnsupportedConversionError{From: srcExt, To: dstExt})
		}
	}

	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("converter: source %s: %w: %w", src, apperr.ErrNotFound, err)
		}
		return nil, fmt.Errorf("converter: stat source: %w", err)
	}

	res := &Result{Source: src, Target: dst}
	if err := conv(c, src, dst, res); err != nil {
		return nil, err
	}

	sum, err := checksum.File(dst)
	if err != nil {
		return nil, fmt.Errorf("converter: %w", err)
	}
	res.Checksum = sum

	c.logger.Info("converter: converted",
		slog.String("source", src),
		slog.String("target", dst),
		slog.String("checksum", sum))
	return res, nil
}

func copyVerbatim(_ *Converter, src, dst string, _ *Result) error {
	if err := storage.CopyFile(src, dst); err != nil {
		return fmt.Errorf("converter: copy: %w", err)
	}
	return nil
}

func scriptToNotebook(_ *Converter, src, dst string, _ *Result) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("converter: read script: %w", err)
	}
	out, err := notebook.Marshal(notebook.ParseScript(data))
	if err != nil {
		return fmt.Errorf("converter: %w", err)
	}
	if err := storage.WriteFileAtomic(dst, out, 0o644); err != nil {
		return fmt.Errorf("converter: write notebook: %w", err)
	}
	return nil
}

func notebookToScript(_ *Converter, src, dst string, _ *Result) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("converter: read notebook: %w", err)
	}
	doc, err := notebook.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("converter: %s: %w", src, err)
	}
	if err := storage.WriteFileAtomic(dst, notebook.RenderScript(doc), 0o644); err != nil {
		return fmt.Errorf("converter: write script: %w", err)
	}
	return nil
}

// jsonToNotebook copies the JSON verbatim and then archives the source.
// An archive failure leaves the written notebook in place.
func jsonToNotebook(c *Converter, src, dst string, res *Result) error {
	if err := copyVerbatim(c, src, dst, res); err != nil {
		return err
	}
	archived, err := c.archive(src)
	if err != nil {
		res.ArchiveErr = fmt.Errorf("%w: could not archive %s: %w", apperr.ErrArchive, src, err)
		c.logger.Warn("converter: archive failed",
			slog.String("source", src),
			slog.String("error", err.Error()))
		return nil
	}
	res.ArchivePath = archived
	return nil
}

func (c *Converter) archive(src string) (string, error) {
	mgr, err := archive.NewManager(filepath.Dir(src), c.logger, archive.WithClock(c.now))
	if err != nil {
		return "", err
	}
	return mgr.Archive(src)
}
