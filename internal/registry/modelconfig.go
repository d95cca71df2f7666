package registry

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mlops-catalog/internal/models"
	pkgconfig "github.com/starford/mlops-catalog/pkg/config"
)

// ModelConfig is the YAML document accepted by "model register".
type ModelConfig struct {
	models.ModelMetadata `yaml:",inline"`
}

// Validate validates the model config.
func (c *ModelConfig) Validate() error {
	return validation.ValidateStruct(&c.ModelMetadata,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Version, validation.Required),
		validation.Field(&c.Framework, validation.Required),
	)
}

// LoadModelConfig reads and validates a model config file. Environment
// variables in the file are expanded.
func LoadModelConfig(path string) (models.ModelMetadata, error) {
	var cfg ModelConfig
	if err := pkgconfig.Load(path, &cfg); err != nil {
		return models.ModelMetadata{}, fmt.Errorf("registry: model config: %w", err)
	}
	return cfg.ModelMetadata, nil
}
