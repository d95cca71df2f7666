// Package workflow drives the interactive notebook conversion session.
//
// The session is an explicit state machine: every prompt returns the next
// state and errors are reported in place, so a failure never unwinds the
// loop.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/mlops-catalog/internal/archive"
	"github.com/starford/mlops-catalog/internal/converter"
	"github.com/starford/mlops-catalog/internal/prompt"
	"github.com/starford/mlops-catalog/internal/storage"
	pkgconfig "github.com/starford/mlops-catalog/pkg/config"
)

// JSONDirName is the directory under the working directory that holds JSON
// notebooks and their archive.
const JSONDirName = "notebook_jsons"

// UI is the dialog surface the session talks to.
type UI interface {
	Select(question string, choices []string) (int, error)
	Confirm(question string) (bool, error)
	Input(question string) (string, error)
	Pause() error
	Say(style prompt.Style, format string, args ...any)
}

// Verify *prompt.Terminal satisfies UI at compile time.
var _ UI = (*prompt.Terminal)(nil)

type state int

const (
	stateMenu state = iota
	stateSelectingSource
	stateSelectingTarget
	stateSelectingOutputDir
	stateConverting
	stateConverted
	stateShowFiles
	stateChangeDir
	stateArchiveMenu
	stateExit
)

var stateNames = map[state]string{
	stateMenu:               "menu",
	stateSelectingSource:    "selecting-source",
	stateSelectingTarget:    "selecting-target",
	stateSelectingOutputDir: "selecting-output-dir",
	stateConverting:         "converting",
	stateConverted:          "converted",
	stateShowFiles:          "show-files",
	stateChangeDir:          "change-dir",
	stateArchiveMenu:        "archive-menu",
	stateExit:               "exit",
}

func (s state) String() string { return stateNames[s] }

var sourceKinds = []struct {
	label string
	ext   string
}{
	{"Python script (.py)", converter.ExtScript},
	{"Notebook (.ipynb)", converter.ExtNotebook},
	{"JSON (.json)", converter.ExtJSON},
}

var extLabels = map[string]string{
	converter.ExtScript:   "Python script (.py)",
	converter.ExtNotebook: "Notebook (.ipynb)",
	converter.ExtJSON:     "JSON (.json)",
}

// Session holds the state of one interactive run.
type Session struct {
	ui            UI
	conv          *converter.Converter
	logger        *slog.Logger
	now           func() time.Time
	workDir       string
	defaultOutDir string
	retentionDays int

	// Current conversion.
	srcExt    string
	src       string
	dstExt    string
	browseDir string
	outDir    string
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for archive timestamps and purging.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithRetentionDays sets the archive retention used by "Delete old archives".
func WithRetentionDays(days int) Option {
	return func(s *Session) {
		s.retentionDays = days
	}
}

// NewSession creates a session rooted at workDir. Converted files are
// offered to defaultOutDir first; it is created on demand.
func NewSession(ui UI, logger *slog.Logger, workDir, defaultOutDir string, opts ...Option) (*Session, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("workflow: resolve work dir: %w", err)
	}
	s := &Session{
		ui:            ui,
		logger:        logger,
		now:           time.Now,
		workDir:       abs,
		defaultOutDir: defaultOutDir,
		retentionDays: archive.DefaultRetentionDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.conv = converter.New(logger, converter.WithClock(s.now))
	return s, nil
}

// WorkDir returns the current working directory of the session.
func (s *Session) WorkDir() string {
	return s.workDir
}

// JSONDir returns the JSON notebook directory for the current working
// directory.
func (s *Session) JSONDir() string {
	return filepath.Join(s.workDir, JSONDirName)
}

// Run loops until the user exits, input ends or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	st := stateMenu
	for st != stateExit {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := s.step(st)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug("workflow: input closed", slog.String("state", st.String()))
				return nil
			}
			return err
		}
		s.logger.Debug("workflow: transition",
			slog.String("from", st.String()),
			slog.String("to", next.String()))
		st = next
	}
	s.ui.Say(prompt.Info, "Goodbye!")
	return nil
}

func (s *Session) step(st state) (state, error) {
	switch st {
	case stateMenu:
		return s.menu()
	case stateSelectingSource:
		return s.selectSource()
	case stateSelectingTarget:
		return s.selectTarget()
	case stateSelectingOutputDir:
		return s.selectOutputDir()
	case stateConverting:
		return s.convert(), nil
	case stateConverted:
		return s.afterConvert()
	case stateShowFiles:
		return s.showFiles()
	case stateChangeDir:
		return s.changeDir()
	case stateArchiveMenu:
		return s.archiveMenu()
	}
	return stateExit, fmt.Errorf("workflow: unknown state %d", st)
}

func (s *Session) menu() (state, error) {
	i, err := s.ui.Select(fmt.Sprintf("Working directory: %s\nWhat would you like to do?", s.workDir), []string{
		"Convert a file",
		"Show available files",
		"Change working directory",
		"Manage JSON archives",
		"Exit",
	})
	if err != nil {
		return stateExit, err
	}
	return []state{stateSelectingSource, stateShowFiles, stateChangeDir, stateArchiveMenu, stateExit}[i], nil
}

func (s *Session) selectSource() (state, error) {
	labels := make([]string, 0, len(sourceKinds)+1)
	for _, k := range sourceKinds {
		labels = append(labels, k.label)
	}
	i, err := s.ui.Select("Select source file type", append(labels, "Go back"))
	if err != nil {
		return stateExit, err
	}
	if i == len(sourceKinds) {
		return stateMenu, nil
	}
	ext := sourceKinds[i].ext

	dir, files, err := s.sourceFiles(ext)
	if err != nil {
		s.report("Could not list files", err)
		return stateSelectingSource, nil
	}
	if len(files) == 0 {
		s.ui.Say(prompt.Warning, "No %s files found in %s", ext, dir)
		return stateSelectingSource, nil
	}

	j, err := s.ui.Select("Select source file", append(files, "Go back"))
	if err != nil {
		return stateExit, err
	}
	if j == len(files) {
		return stateSelectingSource, nil
	}
	s.srcExt = ext
	s.src = filepath.Join(dir, files[j])
	return stateSelectingTarget, nil
}

// sourceFiles lists candidate sources. JSON notebooks are only taken from
// the flat JSON directory; scripts and notebooks are found recursively.
func (s *Session) sourceFiles(ext string) (string, []string, error) {
	if ext == converter.ExtJSON {
		dir := s.JSONDir()
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			return dir, nil, nil
		}
		files, err := storage.FindFiles(dir, ext, false)
		return dir, files, err
	}
	files, err := storage.FindFiles(s.workDir, ext, true)
	return s.workDir, files, err
}

func (s *Session) selectTarget() (state, error) {
	targets := converter.Targets[s.srcExt]
	labels := make([]string, 0, len(targets)+1)
	for _, ext := range targets {
		labels = append(labels, extLabels[ext])
	}
	i, err := s.ui.Select(fmt.Sprintf("Convert %s to", filepath.Base(s.src)), append(labels, "Go back"))
	if err != nil {
		return stateExit, err
	}
	if i == len(targets) {
		return stateSelectingSource, nil
	}
	s.dstExt = targets[i]
	s.browseDir = s.workDir
	return stateSelectingOutputDir, nil
}

func (s *Session) selectOutputDir() (state, error) {
	subdirs, err := storage.Subdirectories(s.browseDir)
	if err != nil {
		s.report("Could not list directory", err)
		subdirs = nil
	}
	choices := []string{"Select this directory", "Use default notebooks directory", "Go up one level"}
	fixed := len(choices)
	for _, d := range subdirs {
		choices = append(choices, d+string(filepath.Separator))
	}
	choices = append(choices, "Cancel")

	i, err := s.ui.Select(fmt.Sprintf("Output directory: %s", s.browseDir), choices)
	if err != nil {
		return stateExit, err
	}
	switch {
	case i == 0:
		s.outDir = s.browseDir
		return stateConverting, nil
	case i == 1:
		if err := os.MkdirAll(s.defaultOutDir, 0o755); err != nil {
			s.report("Could not create default notebooks directory", err)
			return stateSelectingOutputDir, nil
		}
		s.outDir = s.defaultOutDir
		return stateConverting, nil
	case i == 2:
		s.browseDir = filepath.Dir(s.browseDir)
		return stateSelectingOutputDir, nil
	case i == len(choices)-1:
		s.ui.Say(prompt.Warning, "Conversion cancelled")
		return stateMenu, nil
	}
	s.browseDir = filepath.Join(s.browseDir, subdirs[i-fixed])
	return stateSelectingOutputDir, nil
}

func (s *Session) convert() state {
	stem := strings.TrimSuffix(filepath.Base(s.src), s.srcExt)
	dst := filepath.Join(s.outDir, stem+s.dstExt)

	res, err := s.conv.Convert(s.src, dst)
	if err != nil {
		s.logger.Error("workflow: conversion failed",
			slog.String("source", s.src),
			slog.String("target", dst),
			slog.String("error", err.Error()))
		s.ui.Say(prompt.Error, "Conversion failed: %v", err)
		return stateSelectingSource
	}
	s.ui.Say(prompt.Success, "Converted %s -> %s", res.Source, res.Target)
	if res.ArchivePath != "" {
		s.ui.Say(prompt.Info, "Archived source JSON to %s", res.ArchivePath)
	}
	if res.ArchiveErr != nil {
		s.ui.Say(prompt.Warning, "Warning: %v", res.ArchiveErr)
	}
	return stateConverted
}

func (s *Session) afterConvert() (state, error) {
	i, err := s.ui.Select("What next?", []string{
		"Convert another file",
		"Show available files",
		"Change directory",
		"Exit",
	})
	if err != nil {
		return stateExit, err
	}
	return []state{stateSelectingSource, stateShowFiles, stateChangeDir, stateExit}[i], nil
}

func (s *Session) showFiles() (state, error) {
	for _, k := range sourceKinds {
		dir, files, err := s.sourceFiles(k.ext)
		if err != nil {
			s.report("Could not list files", err)
			continue
		}
		s.ui.Say(prompt.Info, "%s in %s:", k.label, dir)
		if len(files) == 0 {
			s.ui.Say(prompt.Plain, "  (none)")
		}
		for _, f := range files {
			s.ui.Say(prompt.Plain, "  %s", f)
		}
	}
	if err := s.ui.Pause(); err != nil {
		return stateExit, err
	}
	return stateMenu, nil
}

func (s *Session) changeDir() (state, error) {
	answer, err := s.ui.Input("Enter new working directory (empty to cancel)")
	if err != nil {
		return stateExit, err
	}
	if answer == "" {
		return stateMenu, nil
	}
	dir := pkgconfig.ExpandHome(answer)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.workDir, dir)
	}
	info, err := os.Stat(dir)
	if err == nil && !info.IsDir() {
		err = fmt.Errorf("%s is not a directory", dir)
	}
	if err != nil {
		s.report("Could not change directory", err)
		return stateMenu, nil
	}
	s.workDir = filepath.Clean(dir)
	s.ui.Say(prompt.Success, "Working directory is now %s", s.workDir)
	return stateMenu, nil
}

func (s *Session) archiveMenu() (state, error) {
	i, err := s.ui.Select("Manage JSON archives", []string{
		"List archived JSONs",
		"Restore archived JSON",
		"Delete old archives",
		"Go back",
	})
	if err != nil {
		return stateExit, err
	}
	if i == 3 {
		return stateMenu, nil
	}

	mgr, err := archive.NewManager(s.JSONDir(), s.logger, archive.WithClock(s.now))
	if err != nil {
		s.report("Could not open archive", err)
		return stateArchiveMenu, nil
	}
	switch i {
	case 0:
		err = s.listArchives(mgr)
	case 1:
		err = s.restoreArchive(mgr)
	case 2:
		err = s.purgeArchives(mgr)
	}
	if err != nil {
		return stateExit, err
	}
	return stateArchiveMenu, nil
}

func (s *Session) listArchives(mgr *archive.Manager) error {
	n := 0
	for name := range mgr.List() {
		if n == 0 {
			s.ui.Say(prompt.Info, "Archived JSON files in %s:", mgr.Dir())
		}
		s.ui.Say(prompt.Plain, "  %s", name)
		n++
	}
	if n == 0 {
		s.ui.Say(prompt.Warning, "No archives found.")
		return nil
	}
	return s.ui.Pause()
}

func (s *Session) restoreArchive(mgr *archive.Manager) error {
	var names []string
	for name := range mgr.List() {
		names = append(names, name)
	}
	if len(names) == 0 {
		s.ui.Say(prompt.Warning, "No archived JSON files found.")
		return nil
	}
	i, err := s.ui.Select("Select archive to restore", append(names, "Go back"))
	if err != nil {
		return err
	}
	if i == len(names) {
		return nil
	}
	dst, err := mgr.Restore(names[i])
	if err != nil {
		s.report("Restore failed", err)
		return nil
	}
	s.ui.Say(prompt.Success, "Restored %s to %s", names[i], dst)
	return nil
}

func (s *Session) purgeArchives(mgr *archive.Manager) error {
	ok, err := s.ui.Confirm(fmt.Sprintf("Delete archives older than %d days?", s.retentionDays))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	n, err := mgr.Purge(s.retentionDays)
	if err != nil {
		s.report("Some archives could not be deleted", err)
	}
	s.ui.Say(prompt.Success, "Deleted %d archived file(s)", n)
	return nil
}

func (s *Session) report(msg string, err error) {
	s.logger.Warn("workflow: "+strings.ToLower(msg), slog.String("error", err.Error()))
	s.ui.Say(prompt.Error, "%s: %v", msg, err)
}
