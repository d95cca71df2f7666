package models

import "time"

// ModelMetadata is a registered model version.
type ModelMetadata struct {
	Name          string             `json:"name" yaml:"name"`
	Version       string             `json:"version" yaml:"version"`
	CreatedAt     time.Time          `json:"created_at" yaml:"created_at,omitempty"`
	Framework     string             `json:"framework" yaml:"framework"`
	Params        map[string]any     `json:"params,omitempty" yaml:"params,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	ArtifactsPath string             `json:"artifacts_path" yaml:"artifacts_path"`
}

// MetricPoint is one logged experiment metric value.
type MetricPoint struct {
	Key       string    `json:"key"`
	Value     float64   `json:"value"`
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}
