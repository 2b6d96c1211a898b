package config

import "sync/atomic"

// RuntimeConfig defines the interface for accessing configuration that
// supports reload. Long-running components (the watch command's pipeline
// loop) should use this instead of holding a direct *Config pointer, which
// would become stale after a reload.
type RuntimeConfig interface {
	Get() *Config
}

// Runtime provides atomic access to configuration for reload support.
// It uses sync/atomic.Pointer for lock-free reads: in-flight pipeline runs
// complete with the old config while new runs observe the updated one.
type Runtime struct {
	ptr atomic.Pointer[Config]
}

// NewRuntime creates a new Runtime with the given initial configuration.
// The initial config is stored and immediately available via Get().
func NewRuntime(initial *Config) *Runtime {
	r := &Runtime{}
	r.ptr.Store(initial)
	return r
}

// Get returns the current configuration atomically.
// Components should call Get per operation to observe the latest
// configuration after a reload.
func (r *Runtime) Get() *Config {
	return r.ptr.Load()
}

// Store atomically replaces the configuration. Readers see either the old
// config or the new one, never an inconsistent state.
func (r *Runtime) Store(cfg *Config) {
	r.ptr.Store(cfg)
}

var _ RuntimeConfig = (*Runtime)(nil)
