package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration file from the given path, choosing
// TOML or YAML by extension. Environment variables in the format ${VAR_NAME}
// are expanded before parsing, and COMICFRAMES_* environment overrides are
// applied afterwards. Values not present in the file keep their defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	format := "toml"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}

	return LoadFromReader(file, format)
}

// LoadFromReader reads and parses configuration from an io.Reader in the
// given format ("toml" or "yaml").
func LoadFromReader(r io.Reader, format string) (*Config, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(content))

	cfg := Default(".")
	switch format {
	case "yaml":
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := toml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)
	return cfg, nil
}

// FromEnv returns the default configuration with COMICFRAMES_* environment
// overrides applied. Used when no config file is present.
func FromEnv() *Config {
	cfg := Default(".")
	ApplyEnvOverrides(cfg)
	return cfg
}

// ApplyEnvOverrides applies COMICFRAMES_* environment variables on top of
// the given configuration. Unset variables leave the config untouched.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COMICFRAMES_DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := os.Getenv("COMICFRAMES_MODELS_DIR"); v != "" {
		cfg.Paths.ModelsDir = v
	}
	if v := os.Getenv("COMICFRAMES_OUTPUT_DIR"); v != "" {
		cfg.Paths.OutputDir = v
	}
	if v := os.Getenv("COMICFRAMES_CACHE_DIR"); v != "" {
		cfg.Cache.BaseDir = v
	}
	if v := os.Getenv("COMICFRAMES_DETECTION_METHOD"); v != "" {
		cfg.Detection.Method = v
	}
	if v, ok := envInt("COMICFRAMES_MIN_WIDTH"); ok {
		cfg.Detection.MinFrameWidth = v
	}
	if v, ok := envInt("COMICFRAMES_MIN_HEIGHT"); ok {
		cfg.Detection.MinFrameHeight = v
	}
	if v := os.Getenv("COMICFRAMES_ENABLE_CACHE"); v != "" {
		enabled := strings.EqualFold(v, "true")
		cfg.Cache.Frame.Enabled = enabled
		cfg.Cache.Model.Enabled = enabled
		cfg.Cache.Processing.Enabled = enabled
	}
	if v := os.Getenv("COMICFRAMES_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
