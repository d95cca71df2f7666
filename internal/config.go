package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mlops-catalog/internal/archive"
	"github.com/starford/mlops-catalog/internal/vertex"
	"github.com/starford/mlops-catalog/internal/workflow"
	pkgconfig "github.com/starford/mlops-catalog/pkg/config"
)

// Environment variables read by ApplyEnv, in addition to the Vertex ones.
const (
	EnvLogLevel    = "MLOPS_LOG_LEVEL"
	EnvBasePath    = "MLOPS_BASE_PATH"
	EnvWorkDir     = "MLOPS_WORKDIR"
	EnvNotebookDir = "MLOPS_NOTEBOOK_DIR"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	Registry  RegistryConfig    `yaml:"registry"`
	Tracking  TrackingConfig    `yaml:"tracking"`
	Vertex    vertex.Config     `yaml:"vertex"`
}

// Validate validates the configuration. The Vertex section is validated
// only by the commands that talk to Vertex AI.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	return c.Workspace.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// BasePath is the root for the registry database and experiment data.
	BasePath string `yaml:"base_path"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BasePath, validation.Required),
	)
}

// WorkspaceConfig holds the notebook workflow directories.
type WorkspaceConfig struct {
	// Dir is the initial working directory of the interactive workflow.
	Dir string `yaml:"dir"`
	// NotebookDir is the default output directory for converted notebooks.
	NotebookDir   string `yaml:"notebook_dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.NotebookDir, validation.Required),
		validation.Field(&c.RetentionDays, validation.Min(0)),
	)
}

// JSONDir returns the directory holding active JSON documents for workDir.
func JSONDir(workDir string) string {
	return filepath.Join(workDir, workflow.JSONDirName)
}

// RegistryConfig holds the model registry database location.
type RegistryConfig struct {
	// Path defaults to {base_path}/registry/registry.db when empty.
	Path string `yaml:"path"`
}

// TrackingConfig holds the experiment tracking location.
type TrackingConfig struct {
	// Path defaults to {base_path}/experiments when empty.
	Path string `yaml:"path"`
}

// RegistryPath returns the resolved registry database file.
func (c *Config) RegistryPath() string {
	if c.Registry.Path != "" {
		return pkgconfig.ExpandHome(c.Registry.Path)
	}
	return filepath.Join(pkgconfig.ExpandHome(c.App.BasePath), "registry", "registry.db")
}

// ExperimentsPath returns the resolved experiments directory.
func (c *Config) ExperimentsPath() string {
	if c.Tracking.Path != "" {
		return pkgconfig.ExpandHome(c.Tracking.Path)
	}
	return filepath.Join(pkgconfig.ExpandHome(c.App.BasePath), "experiments")
}

// NotebookDir returns the resolved default notebook output directory.
func (c *Config) NotebookDir() string {
	return pkgconfig.ExpandHome(c.Workspace.NotebookDir)
}

// ApplyEnv overlays environment variables found through lookup onto c.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		if err := c.App.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
	}
	if v, ok := lookup(EnvBasePath); ok && v != "" {
		c.App.BasePath = v
	}
	if v, ok := lookup(EnvWorkDir); ok && v != "" {
		c.Workspace.Dir = v
	}
	if v, ok := lookup(EnvNotebookDir); ok && v != "" {
		c.Workspace.NotebookDir = v
	}
	// The Vertex base path follows App.BasePath; see ResolvePaths.
	c.Vertex.ApplyEnv(func(k string) (string, bool) {
		if k == vertex.EnvBasePath {
			return "", false
		}
		return lookup(k)
	})
	return nil
}

// ResolvePaths expands "~" in the configured directories and defaults the
// Vertex base path to App.BasePath. Call it after every layer is applied.
func (c *Config) ResolvePaths() {
	if c.Vertex.BasePath == "" {
		c.Vertex.BasePath = c.App.BasePath
	}
	c.App.BasePath = pkgconfig.ExpandHome(c.App.BasePath)
	c.Vertex.BasePath = pkgconfig.ExpandHome(c.Vertex.BasePath)
	c.Workspace.Dir = pkgconfig.ExpandHome(c.Workspace.Dir)
	c.Workspace.NotebookDir = pkgconfig.ExpandHome(c.Workspace.NotebookDir)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	cfg := &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelWarn,
			BasePath: "~/.mlops",
		},
		Workspace: WorkspaceConfig{
			Dir:           ".",
			NotebookDir:   "~/mlops/notebooks",
			RetentionDays: archive.DefaultRetentionDays,
		},
		Vertex: *vertex.NewDefaultConfig(),
	}
	cfg.Vertex.BasePath = ""
	return cfg
}
