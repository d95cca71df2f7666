// Package vertex holds the Vertex AI integration settings.
//
// Values are resolved in layers: explicit values from a YAML file win over
// environment variables, which win over the defaults.
package vertex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mlops-catalog/internal/apperr"
	pkgconfig "github.com/starford/mlops-catalog/pkg/config"
)

// Environment variables read by ApplyEnv.
const (
	EnvProjectID         = "VERTEX_PROJECT_ID"
	EnvGoogleProject     = "GOOGLE_CLOUD_PROJECT"
	EnvRegion            = "VERTEX_REGION"
	EnvStagingBucket     = "VERTEX_STAGING_BUCKET"
	EnvContainerRegistry = "VERTEX_CONTAINER_REGISTRY"
	EnvBasePath          = "MLOPS_BASE_PATH"
)

// Defaults.
const (
	DefaultRegion            = "us-central1"
	DefaultContainerRegistry = "gcr.io"
	DefaultBasePath          = "~/.mlops"
)

// Config holds the Vertex AI settings.
type Config struct {
	ProjectID         string `yaml:"project_id" json:"project_id"`
	Region            string `yaml:"region" json:"region"`
	StagingBucket     string `yaml:"staging_bucket" json:"staging_bucket,omitempty"`
	ContainerRegistry string `yaml:"default_container_registry" json:"default_container_registry"`
	BasePath          string `yaml:"mlops_base_path" json:"mlops_base_path"`
}

// NewDefaultConfig returns the settings with only defaults applied.
func NewDefaultConfig() *Config {
	return &Config{
		Region:            DefaultRegion,
		ContainerRegistry: DefaultContainerRegistry,
		BasePath:          pkgconfig.ExpandHome(DefaultBasePath),
	}
}

// ApplyEnv overlays values found through lookup, normally os.LookupEnv.
// The project falls back to GOOGLE_CLOUD_PROJECT when VERTEX_PROJECT_ID is
// unset.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvProjectID); ok && v != "" {
		c.ProjectID = v
	} else if v, ok := lookup(EnvGoogleProject); ok && v != "" {
		c.ProjectID = v
	}
	if v, ok := lookup(EnvRegion); ok && v != "" {
		c.Region = v
	}
	if v, ok := lookup(EnvStagingBucket); ok && v != "" {
		c.StagingBucket = v
	}
	if v, ok := lookup(EnvContainerRegistry); ok && v != "" {
		c.ContainerRegistry = v
	}
	if v, ok := lookup(EnvBasePath); ok && v != "" {
		c.BasePath = pkgconfig.ExpandHome(v)
	}
}

// Validate validates the settings.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ProjectID, validation.Required.Error("project ID must be set (VERTEX_PROJECT_ID or GOOGLE_CLOUD_PROJECT)")),
		validation.Field(&c.Region, validation.Required),
		validation.Field(&c.ContainerRegistry, validation.Required),
		validation.Field(&c.BasePath, validation.Required),
	)
}

// StagingBucketURI returns the configured staging bucket, or the bucket
// derived from the project id.
func (c *Config) StagingBucketURI() string {
	if c.StagingBucket != "" {
		return c.StagingBucket
	}
	return fmt.Sprintf("gs://%s-vertex-staging", c.ProjectID)
}

// EnsureBasePath creates the MLOps base directory.
func (c *Config) EnsureBasePath() error {
	if err := os.MkdirAll(c.BasePath, 0o755); err != nil {
		return fmt.Errorf("vertex: create base path: %w", err)
	}
	return nil
}

// FromYAML resolves defaults, environment variables and then the explicit
// values in the YAML file at path.
func FromYAML(path string, lookup func(string) (string, bool)) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("vertex: config file %s: %w", path, apperr.ErrNotFound)
	}
	cfg := NewDefaultConfig()
	cfg.ApplyEnv(lookup)
	if err := pkgconfig.Load(path, cfg); err != nil {
		return nil, fmt.Errorf("vertex: %w", err)
	}
	cfg.BasePath = pkgconfig.ExpandHome(cfg.BasePath)
	return cfg, nil
}
