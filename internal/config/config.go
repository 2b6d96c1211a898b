// Package config provides configuration loading and parsing for comicframes.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/omarluq/comicframes/internal/cache"
)

// Log level constants.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Detection method constants.
const (
	MethodThreshold = "threshold"
	MethodEdge      = "edge"
)

// Config represents the complete comicframes configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths" toml:"paths"`
	Detection DetectionConfig `yaml:"detection" toml:"detection"`
	Models    ModelsConfig    `yaml:"models" toml:"models"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Cache     cache.Config    `yaml:"cache" toml:"cache"`
}

// PathsConfig defines the on-disk project layout.
type PathsConfig struct {
	// DataDir is the base directory for rasterized pages and extracted
	// frames. Each document gets its own subdirectory under it.
	DataDir string `yaml:"data_dir" toml:"data_dir"`

	// ModelsDir is where downloaded model artifacts are materialized.
	ModelsDir string `yaml:"models_dir" toml:"models_dir"`

	// OutputDir is the default destination for command output.
	OutputDir string `yaml:"output_dir" toml:"output_dir"`
}

// DetectionConfig defines frame detection behavior.
type DetectionConfig struct {
	// Method selects the detection algorithm: threshold (default) or edge.
	Method string `yaml:"method" toml:"method"`

	// MinFrameWidth is the minimum width in pixels for a valid frame.
	MinFrameWidth int `yaml:"min_frame_width" toml:"min_frame_width"`

	// MinFrameHeight is the minimum height in pixels for a valid frame.
	MinFrameHeight int `yaml:"min_frame_height" toml:"min_frame_height"`
}

// GetEffectiveMethod returns the detection method with default fallback.
func (d *DetectionConfig) GetEffectiveMethod() string {
	if d.Method == "" {
		return MethodThreshold
	}
	return d.Method
}

// ModelsConfig defines model loading behavior.
type ModelsConfig struct {
	// DownloadTimeoutMS bounds a single model download in milliseconds.
	// Default: 300000 (5 minutes).
	DownloadTimeoutMS int `yaml:"download_timeout_ms" toml:"download_timeout_ms"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // json, console, pretty
	Output string `yaml:"output" toml:"output"` // stdout, stderr, or file path
	Pretty bool   `yaml:"pretty" toml:"pretty"` // enable colored console output
}

// ParseLevel converts a string log level to zerolog.Level.
// Returns zerolog.InfoLevel if the level string is invalid.
func (l *LoggingConfig) ParseLevel() zerolog.Level {
	switch strings.ToLower(l.Level) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Validate checks the configuration for errors.
// Returns nil if the configuration is valid.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return errors.New("config: paths.data_dir is required")
	}
	switch c.Detection.GetEffectiveMethod() {
	case MethodThreshold, MethodEdge:
	default:
		return fmt.Errorf("config: unknown detection method %q", c.Detection.Method)
	}
	if c.Detection.MinFrameWidth < 0 || c.Detection.MinFrameHeight < 0 {
		return errors.New("config: detection minimums must be non-negative")
	}
	return c.Cache.Validate()
}

// Default returns a Config with sensible defaults rooted at dir.
func Default(dir string) *Config {
	cacheCfg := cache.DefaultConfig()
	cacheCfg.BaseDir = filepath.Join(dir, ".cache")

	return &Config{
		Paths: PathsConfig{
			DataDir:   filepath.Join(dir, "Data"),
			ModelsDir: filepath.Join(dir, "models"),
			OutputDir: filepath.Join(dir, "output"),
		},
		Detection: DetectionConfig{
			Method:         MethodThreshold,
			MinFrameWidth:  75,
			MinFrameHeight: 100,
		},
		Models: ModelsConfig{
			DownloadTimeoutMS: 300_000,
		},
		Logging: LoggingConfig{
			Level:  LevelInfo,
			Format: "console",
			Output: "stdout",
		},
		Cache: cacheCfg,
	}
}
