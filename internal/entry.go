// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/mlops-catalog/internal/prompt"
	"github.com/starford/mlops-catalog/internal/workflow"
)

// NewLogger returns the structured JSON logger used by every command.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Run starts the interactive notebook workflow with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{
		in:  os.Stdin,
		out: os.Stdout,
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Logs go to stderr so prompts on stdout stay readable.
	logger := app.logger
	if logger == nil {
		logger = NewLogger(os.Stderr, cfg.App.LogLevel)
		slog.SetDefault(logger)
	}

	logger.Info("Configuration loaded",
		slog.String("work_dir", cfg.Workspace.Dir),
		slog.String("notebook_dir", cfg.NotebookDir()),
		slog.Int("retention_days", cfg.Workspace.RetentionDays),
		slog.String("log_level", cfg.App.LogLevel.String()))

	notebookDir := cfg.NotebookDir()
	if err := os.MkdirAll(notebookDir, 0o755); err != nil {
		return fmt.Errorf("create notebook dir: %w", err)
	}

	term := prompt.NewTerminal(app.in, app.out)
	session, err := workflow.NewSession(term, logger, cfg.Workspace.Dir, notebookDir,
		workflow.WithRetentionDays(cfg.Workspace.RetentionDays))
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}

	if err := session.Run(ctx); err != nil {
		logger.Error("Session error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Session ended", slog.String("work_dir", session.WorkDir()))
	return nil
}
