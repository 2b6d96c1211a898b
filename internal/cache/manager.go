package cache

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/mo"
)

// Namespace directory names under Config.BaseDir.
const (
	frameDir      = "frames"
	modelDir      = "models"
	processingDir = "processing"
)

// Manager is the single entry point for all caching operations. It composes
// the three file-backed namespaces (frame, model, processing) with one shared
// memory tier behind namespace-qualified accessors.
//
// All write accessors are fire-and-forget: the tier outcome is recorded for
// observability and then discarded, so caching can never affect the
// correctness of the primary computation.
type Manager struct {
	frame      Tier
	model      Tier
	processing Tier
	memory     *Memory
	cfg        Config
	log        zerolog.Logger
}

// NewManager creates a Manager from the given configuration.
// Disabled namespaces are backed by no-op tiers.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger().With().Str("component", "cache_manager").Logger()

	openTier := func(namespace, dir string, nc NamespaceConfig) (Tier, error) {
		if !nc.Enabled {
			return NewNoopTier(namespace), nil
		}
		return NewFileTier(filepath.Join(cfg.BaseDir, dir), nc)
	}

	frame, err := openTier("frame", frameDir, cfg.Frame)
	if err != nil {
		return nil, err
	}
	model, err := openTier("model", modelDir, cfg.Model)
	if err != nil {
		return nil, err
	}
	processing, err := openTier("processing", processingDir, cfg.Processing)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Bool("frame", cfg.Frame.Enabled).
		Bool("model", cfg.Model.Enabled).
		Bool("processing", cfg.Processing.Enabled).
		Msg("cache manager initialized")

	return &Manager{
		frame:      frame,
		model:      model,
		processing: processing,
		memory:     NewMemory(cfg.Memory),
		cfg:        cfg,
		log:        log,
	}, nil
}

// GetFrameData retrieves cached frame data.
// Returns ErrNotFound on a miss or when the namespace is disabled.
func (m *Manager) GetFrameData(ctx context.Context, key string) ([]byte, error) {
	return m.frame.Get(ctx, key)
}

// SetFrameData caches frame data, best-effort.
func (m *Manager) SetFrameData(ctx context.Context, key string, value []byte) {
	m.store(ctx, m.frame, "frame", key, value)
}

// GetModelData retrieves cached model data.
// Returns ErrNotFound on a miss or when the namespace is disabled.
func (m *Manager) GetModelData(ctx context.Context, key string) ([]byte, error) {
	return m.model.Get(ctx, key)
}

// SetModelData caches model data, best-effort.
func (m *Manager) SetModelData(ctx context.Context, key string, value []byte) {
	m.store(ctx, m.model, "model", key, value)
}

// GetProcessingData retrieves cached processing data.
// Returns ErrNotFound on a miss or when the namespace is disabled.
func (m *Manager) GetProcessingData(ctx context.Context, key string) ([]byte, error) {
	return m.processing.Get(ctx, key)
}

// SetProcessingData caches processing data, best-effort.
func (m *Manager) SetProcessingData(ctx context.Context, key string, value []byte) {
	m.store(ctx, m.processing, "processing", key, value)
}

// GetMemoryData retrieves a value from the shared memory tier.
func (m *Manager) GetMemoryData(key string) (any, bool) {
	return m.memory.Get(key)
}

// SetMemoryData stores a value in the shared memory tier.
func (m *Manager) SetMemoryData(key string, value any) {
	m.memory.Set(key, value)
}

// store performs a fire-and-forget tier write. The outcome is materialized
// as an explicit Result and consumed here, formalizing that write failures
// degrade to "value not cached" and nothing else.
func (m *Manager) store(ctx context.Context, tier Tier, namespace, key string, value []byte) {
	outcome := mo.TupleToResult(len(value), tier.Set(ctx, key, value))
	if outcome.IsError() {
		m.log.Debug().
			Err(outcome.Error()).
			Str("namespace", namespace).
			Str("key", key).
			Msg("cache write skipped")
	}
}

// ClearAll clears every tier, enabled or not.
func (m *Manager) ClearAll(ctx context.Context) {
	for namespace, tier := range m.blobTiers() {
		if err := tier.Clear(ctx); err != nil {
			m.log.Warn().Err(err).Str("namespace", namespace).Msg("cache clear failed")
		}
	}
	m.memory.Clear()
}

// CleanupExpired fans out an eager TTL sweep to every tier and returns the
// total number of entries removed.
func (m *Manager) CleanupExpired(ctx context.Context) int {
	removed := 0
	for namespace, tier := range m.blobTiers() {
		n, err := tier.CleanupExpired(ctx)
		if err != nil {
			m.log.Warn().Err(err).Str("namespace", namespace).Msg("cache cleanup failed")
			continue
		}
		removed += n
	}
	removed += m.memory.CleanupExpired()
	return removed
}

// Stats aggregates every enabled tier's statistics under its namespace key.
// The memory tier is always present.
func (m *Manager) Stats() map[string]TierStats {
	stats := map[string]TierStats{
		"memory": m.memory.Stats(),
	}
	if m.cfg.Frame.Enabled {
		stats["frame"] = m.frame.Stats()
	}
	if m.cfg.Model.Enabled {
		stats["model"] = m.model.Stats()
	}
	if m.cfg.Processing.Enabled {
		stats["processing"] = m.processing.Stats()
	}
	return stats
}

func (m *Manager) blobTiers() map[string]Tier {
	return map[string]Tier{
		"frame":      m.frame,
		"model":      m.model,
		"processing": m.processing,
	}
}

var (
	defaultMu      sync.Mutex
	defaultManager *Manager
)

// Default returns the process-wide Manager, creating it lazily from
// DefaultConfig on first use. It exists for convenience call sites;
// composition roots should construct a Manager and inject it instead.
func Default() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultManager == nil {
		mgr, err := NewManager(DefaultConfig())
		if err != nil {
			// DefaultConfig always validates; only directory creation can
			// fail here. Degrade to fully disabled caching.
			cfg := DefaultConfig()
			cfg.Frame.Enabled = false
			cfg.Model.Enabled = false
			cfg.Processing.Enabled = false
			cfg.BaseDir = ""
			mgr, _ = NewManager(cfg)
		}
		defaultManager = mgr
	}
	return defaultManager
}

// SetDefault replaces the process-wide Manager. Components that already
// captured the previous instance keep using it; replacement affects only
// later Default calls.
func SetDefault(m *Manager) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultManager = m
}
