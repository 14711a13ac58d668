// Package config handles configuration loading, validation, and hot
// reloading for lineaged.
package config

import (
	"errors"
	"fmt"
	"time"

	"lineaged/internal/anchors"
	"lineaged/internal/trust"
)

// Version is the current configuration schema version.
const Version = 1

// Errors
var (
	ErrUnknownFormat = errors.New("config: unknown file format (want .toml, .json, or .yaml)")
	ErrBadDrift      = errors.New("config: drift bounds must be positive")
	ErrBadAnchorMode = errors.New("config: anchor mode must be one of non_empty, prefix, static")
)

// Config holds the complete lineaged configuration.
type Config struct {
	Version int `toml:"version" json:"version" yaml:"version"`

	// Engine configures the verification pipeline.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Trust parameterizes the adaptive controller.
	Trust trust.Params `toml:"trust" json:"trust" yaml:"trust"`

	// Batch parameterizes the auxiliary consistency form.
	Batch trust.BatchParams `toml:"batch" json:"batch" yaml:"batch"`

	// Anchors configures the anchor-reference check.
	Anchors AnchorConfig `toml:"anchors" json:"anchors" yaml:"anchors"`

	// Storage configures the SQLite audit store.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configures slog output.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// EngineConfig holds pipeline parameters.
type EngineConfig struct {
	// MaxFutureDriftSec bounds how many seconds ahead of the reference
	// clock a proof timestamp may sit.
	MaxFutureDriftSec int `toml:"max_future_drift_sec" json:"max_future_drift_sec" yaml:"max_future_drift_sec"`

	// MaxBackwardDriftSec bounds how many seconds behind the identity's
	// last accepted timestamp a proof may fall.
	MaxBackwardDriftSec int `toml:"max_backward_drift_sec" json:"max_backward_drift_sec" yaml:"max_backward_drift_sec"`
}

// FutureDrift returns the future bound as a duration.
func (e EngineConfig) FutureDrift() time.Duration {
	return time.Duration(e.MaxFutureDriftSec) * time.Second
}

// BackwardDrift returns the backward bound as a duration.
func (e EngineConfig) BackwardDrift() time.Duration {
	return time.Duration(e.MaxBackwardDriftSec) * time.Second
}

// AnchorConfig selects the anchor-reference checker.
type AnchorConfig struct {
	// Mode is "non_empty", "prefix", or "static".
	Mode string `toml:"mode" json:"mode" yaml:"mode"`

	// Prefixes are the accepted reference schemes in prefix mode.
	Prefixes []string `toml:"prefixes" json:"prefixes" yaml:"prefixes"`

	// Allowed is the fixed allow set in static mode.
	Allowed []string `toml:"allowed" json:"allowed" yaml:"allowed"`
}

// Checker builds the configured anchor checker. Call Validate first;
// an unknown mode falls back to non_empty.
func (a AnchorConfig) Checker() anchors.Checker {
	switch a.Mode {
	case "prefix":
		return anchors.Prefix{Prefixes: a.Prefixes}
	case "static":
		allowed := make(map[string]bool, len(a.Allowed))
		for _, ref := range a.Allowed {
			allowed[ref] = true
		}
		return anchors.Static{Allowed: allowed}
	default:
		return anchors.NonEmpty{}
	}
}

// StorageConfig holds audit store settings.
type StorageConfig struct {
	// Enabled turns decision persistence on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" json:"listen" yaml:"listen"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: Version,
		Engine: EngineConfig{
			MaxFutureDriftSec:   30,
			MaxBackwardDriftSec: 10,
		},
		Trust:   trust.DefaultParams(),
		Batch:   trust.DefaultBatchParams(),
		Anchors: AnchorConfig{Mode: "non_empty"},
		Storage: StorageConfig{Enabled: false, Path: "lineaged.db"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: false, Listen: "127.0.0.1:9477"},
	}
}

// Validate checks the configuration, including the controller's
// punishment asymmetry.
func (c *Config) Validate() error {
	if c.Engine.MaxFutureDriftSec <= 0 || c.Engine.MaxBackwardDriftSec <= 0 {
		return fmt.Errorf("%w: future=%d backward=%d",
			ErrBadDrift, c.Engine.MaxFutureDriftSec, c.Engine.MaxBackwardDriftSec)
	}

	switch c.Anchors.Mode {
	case "non_empty", "prefix", "static":
	default:
		return fmt.Errorf("%w: %q", ErrBadAnchorMode, c.Anchors.Mode)
	}

	if err := c.Trust.Validate(); err != nil {
		return fmt.Errorf("validate trust params: %w", err)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}

	return nil
}
