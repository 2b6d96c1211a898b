package cache

import (
	"errors"
	"fmt"
	"time"
)

// Config defines the cache layer configuration: one file-backed namespace
// config per logical cache plus the shared memory tier.
// Use Validate() to check for configuration errors before creating a Manager.
type Config struct {
	// BaseDir is the root directory for all file-backed namespaces.
	// Each namespace stores its entries in its own subdirectory.
	BaseDir string `toml:"base_dir" yaml:"base_dir"`

	Frame      NamespaceConfig `toml:"frame" yaml:"frame"`
	Model      NamespaceConfig `toml:"model" yaml:"model"`
	Processing NamespaceConfig `toml:"processing" yaml:"processing"`
	Memory     MemoryConfig    `toml:"memory" yaml:"memory"`
}

// NamespaceConfig configures one file-backed cache namespace.
// Immutable after the tier is constructed.
type NamespaceConfig struct {
	// Enabled toggles the namespace. A disabled namespace's accessors are
	// pure no-ops: reads miss and writes are discarded, never an error.
	Enabled bool `toml:"enabled" yaml:"enabled"`

	// MaxSizeMB is the on-disk size bound in megabytes. After a write pushes
	// the namespace over the bound, oldest entries are evicted until total
	// size falls to 80% of it.
	MaxSizeMB int64 `toml:"max_size_mb" yaml:"max_size_mb"`

	// TTLSeconds is the entry time-to-live in seconds.
	TTLSeconds int64 `toml:"ttl_seconds" yaml:"ttl_seconds"`
}

// TTL returns the namespace time-to-live as a duration.
func (n NamespaceConfig) TTL() time.Duration {
	return time.Duration(n.TTLSeconds) * time.Second
}

// MemoryConfig configures the shared in-memory tier.
type MemoryConfig struct {
	// MaxEntries bounds the tier by entry count, not byte size. Inserting a
	// new key at capacity evicts exactly one entry, the oldest by write time.
	MaxEntries int `toml:"max_entries" yaml:"max_entries"`

	// TTLSeconds is the entry time-to-live in seconds.
	TTLSeconds int64 `toml:"ttl_seconds" yaml:"ttl_seconds"`
}

// TTL returns the memory tier time-to-live as a duration.
func (m MemoryConfig) TTL() time.Duration {
	return time.Duration(m.TTLSeconds) * time.Second
}

// Validate checks the configuration for errors.
// Returns nil if the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseDir == "" && (c.Frame.Enabled || c.Model.Enabled || c.Processing.Enabled) {
		return errors.New("cache: base_dir is required when a file namespace is enabled")
	}
	for ns, nc := range map[string]NamespaceConfig{
		"frame":      c.Frame,
		"model":      c.Model,
		"processing": c.Processing,
	} {
		if !nc.Enabled {
			continue
		}
		if nc.MaxSizeMB <= 0 {
			return fmt.Errorf("cache: %s.max_size_mb must be positive", ns)
		}
		if nc.TTLSeconds <= 0 {
			return fmt.Errorf("cache: %s.ttl_seconds must be positive", ns)
		}
	}
	if c.Memory.MaxEntries <= 0 {
		return errors.New("cache: memory.max_entries must be positive")
	}
	if c.Memory.TTLSeconds <= 0 {
		return errors.New("cache: memory.ttl_seconds must be positive")
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults.
// Frame: 500 MB, 24h TTL. Model: 2000 MB, 1 week TTL.
// Processing: 1000 MB, 6h TTL. Memory: 100 entries, 5 minute TTL.
func DefaultConfig() Config {
	return Config{
		BaseDir: ".cache",
		Frame: NamespaceConfig{
			Enabled:    true,
			MaxSizeMB:  500,
			TTLSeconds: 24 * 60 * 60,
		},
		Model: NamespaceConfig{
			Enabled:    true,
			MaxSizeMB:  2000,
			TTLSeconds: 7 * 24 * 60 * 60,
		},
		Processing: NamespaceConfig{
			Enabled:    true,
			MaxSizeMB:  1000,
			TTLSeconds: 6 * 60 * 60,
		},
		Memory: MemoryConfig{
			MaxEntries: 100,
			TTLSeconds: 5 * 60,
		},
	}
}
