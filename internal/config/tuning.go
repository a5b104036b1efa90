// Package config loads the step-up tuning parameters from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/stepup.report/internal/capability"
	"github.com/banshee-data/stepup.report/internal/posture"
	"github.com/banshee-data/stepup.report/internal/scheduler"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root tuning configuration. Fields are pointers so
// that a partial file only overrides what it names; the Get* methods
// supply defaults for the rest.
type TuningConfig struct {
	// Posture thresholds, in degrees of knee flexion.
	UpThreshold   *float64 `json:"up_threshold,omitempty"`
	DownThreshold *float64 `json:"down_threshold,omitempty"`

	// Landmark guard
	MinLandmarks    *int     `json:"min_landmarks,omitempty"`
	RequiredIndices []int    `json:"required_indices,omitempty"`
	MinVisibility   *float64 `json:"min_visibility,omitempty"`

	// Scheduling
	TickInterval      *string `json:"tick_interval,omitempty"`      // duration string like "16ms"
	CapabilityTimeout *string `json:"capability_timeout,omitempty"` // duration string like "30s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to its
// default.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		UpThreshold:       ptrFloat64(posture.DefaultUpThreshold),
		DownThreshold:     ptrFloat64(posture.DefaultDownThreshold),
		MinLandmarks:      ptrInt(posture.DefaultMinLandmarks),
		RequiredIndices:   append([]int(nil), posture.DefaultRequiredIndices...),
		MinVisibility:     ptrFloat64(0),
		TickInterval:      ptrString(scheduler.DefaultTickInterval.String()),
		CapabilityTimeout: ptrString(capability.DefaultTimeout.String()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and be under 1MB. Fields omitted from the file
// fall back to their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. It panics if the
// file cannot be loaded and is intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/stepup/ subpackages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the set values are valid on their own and that the
// resulting thresholds form a hysteresis band.
func (c *TuningConfig) Validate() error {
	if c.MinLandmarks != nil && *c.MinLandmarks < 0 {
		return fmt.Errorf("min_landmarks must be non-negative, got %d", *c.MinLandmarks)
	}
	for _, i := range c.RequiredIndices {
		if i < 0 {
			return fmt.Errorf("required_indices must be non-negative, got %d", i)
		}
	}
	if c.MinVisibility != nil && (*c.MinVisibility < 0 || *c.MinVisibility > 1) {
		return fmt.Errorf("min_visibility must be between 0 and 1, got %f", *c.MinVisibility)
	}
	if err := validDuration("tick_interval", c.TickInterval); err != nil {
		return err
	}
	if err := validDuration("capability_timeout", c.CapabilityTimeout); err != nil {
		return err
	}
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	return nil
}

func validDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, *v)
	}
	return nil
}

// GetUpThreshold returns the up_threshold value or the default.
func (c *TuningConfig) GetUpThreshold() float64 {
	if c.UpThreshold == nil {
		return posture.DefaultUpThreshold
	}
	return *c.UpThreshold
}

// GetDownThreshold returns the down_threshold value or the default.
func (c *TuningConfig) GetDownThreshold() float64 {
	if c.DownThreshold == nil {
		return posture.DefaultDownThreshold
	}
	return *c.DownThreshold
}

// GetMinLandmarks returns the min_landmarks value or the default.
func (c *TuningConfig) GetMinLandmarks() int {
	if c.MinLandmarks == nil {
		return posture.DefaultMinLandmarks
	}
	return *c.MinLandmarks
}

// GetRequiredIndices returns the required_indices value or the default.
func (c *TuningConfig) GetRequiredIndices() []int {
	if len(c.RequiredIndices) == 0 {
		return append([]int(nil), posture.DefaultRequiredIndices...)
	}
	return append([]int(nil), c.RequiredIndices...)
}

// GetMinVisibility returns the min_visibility value or 0 (disabled).
func (c *TuningConfig) GetMinVisibility() float64 {
	if c.MinVisibility == nil {
		return 0
	}
	return *c.MinVisibility
}

// GetTickInterval parses and returns TickInterval.
func (c *TuningConfig) GetTickInterval() time.Duration {
	return parseDurationOr(c.TickInterval, scheduler.DefaultTickInterval)
}

// GetCapabilityTimeout parses and returns CapabilityTimeout.
func (c *TuningConfig) GetCapabilityTimeout() time.Duration {
	return parseDurationOr(c.CapabilityTimeout, capability.DefaultTimeout)
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def // default on parse error
	}
	return d
}

// Thresholds returns the configured posture thresholds.
func (c *TuningConfig) Thresholds() posture.Thresholds {
	return posture.Thresholds{Up: c.GetUpThreshold(), Down: c.GetDownThreshold()}
}

// Classifier builds a posture classifier from the configuration.
func (c *TuningConfig) Classifier() *posture.Classifier {
	return &posture.Classifier{
		Thresholds:      c.Thresholds(),
		MinLandmarks:    c.GetMinLandmarks(),
		RequiredIndices: c.GetRequiredIndices(),
		MinVisibility:   c.GetMinVisibility(),
	}
}
