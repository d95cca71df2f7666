// Package tracking records experiment parameters and metrics on disk.
//
// Each experiment lives in its own directory under a base path:
//
//	{base}/{name}/params.yaml    merged key/value parameters
//	{base}/{name}/metrics.jsonl  one JSON object per logged metric
package tracking

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/mlops-catalog/internal/apperr"
	"github.com/starford/mlops-catalog/internal/models"
	"github.com/starford/mlops-catalog/internal/storage"
)

const (
	paramsFile  = "params.yaml"
	metricsFile = "metrics.jsonl"
)

// Tracker writes to a single experiment directory.
type Tracker struct {
	store storage.Provider
	name  string
	now   func() time.Time
}

// New returns a tracker for the named experiment, creating its directory.
func New(base, name string) (*Tracker, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("tracking: invalid experiment name %q", name)
	}
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tracking: create %s: %w", dir, err)
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("tracking: %w", err)
	}
	return &Tracker{store: store, name: name, now: time.Now}, nil
}

// Name returns the experiment name.
func (t *Tracker) Name() string { return t.name }

// Dir returns the experiment directory.
func (t *Tracker) Dir() string { return t.store.Root() }

// Params returns the logged parameters. An experiment with no parameters
// yields an empty map.
func (t *Tracker) Params() (map[string]any, error) {
	data, err := t.store.Read(paramsFile)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tracking: read params: %w", err)
	}
	params := map[string]any{}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("tracking: %w: params: %w", apperr.ErrParse, err)
	}
	return params, nil
}

// LogParams merges params into the stored parameters. Existing keys are
// overwritten.
func (t *Tracker) LogParams(params map[string]any) error {
	merged, err := t.Params()
	if err != nil {
		return err
	}
	for k, v := range params {
		merged[k] = v
	}
	data, err := yaml.Marshal(merged)
	if err != nil {
		return fmt.Errorf("tracking: encode params: %w", err)
	}
	if err := t.store.Write(paramsFile, data); err != nil {
		return fmt.Errorf("tracking: write params: %w", err)
	}
	return nil
}

// LogMetric appends one metric value.
func (t *Tracker) LogMetric(key string, value float64, step int) error {
	if key == "" {
		return errors.New("tracking: metric key must not be empty")
	}
	line, err := json.Marshal(models.MetricPoint{
		Key:       key,
		Value:     value,
		Step:      step,
		Timestamp: t.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("tracking: encode metric: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(t.Dir(), metricsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("tracking: open metrics: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("tracking: write metric: %w", err)
	}
	return f.Close()
}

// Metrics returns every logged metric in the order it was written.
func (t *Tracker) Metrics() ([]models.MetricPoint, error) {
	f, err := os.Open(filepath.Join(t.Dir(), metricsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tracking: open metrics: %w", err)
	}
	defer f.Close()

	var out []models.MetricPoint
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var p models.MetricPoint
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return nil, fmt.Errorf("tracking: %w: metrics line %d: %w", apperr.ErrParse, n, err)
		}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("tracking: read metrics: %w", err)
	}
	return out, nil
}

// ParseParam splits a "key=value" argument. The value is decoded as a YAML
// scalar so numbers and booleans keep their type.
func ParseParam(arg string) (string, any, error) {
	key, raw, ok := strings.Cut(arg, "=")
	if !ok || key == "" {
		return "", nil, fmt.Errorf("tracking: parameter %q must be key=value", arg)
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return key, raw, nil
	}
	switch v.(type) {
	case string, bool, int, float64:
		return key, v, nil
	}
	return key, raw, nil
}
