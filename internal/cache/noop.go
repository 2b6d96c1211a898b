package cache

import (
	"context"

	"github.com/rs/zerolog"
)

// noopTier backs a disabled namespace. By contract a disabled namespace is a
// defined no-op, never an error: reads always miss and writes succeed while
// storing nothing.
type noopTier struct {
	log zerolog.Logger
}

// NewNoopTier creates a tier for a disabled namespace.
func NewNoopTier(namespace string) Tier {
	log := logger().With().Str("tier", "noop").Str("namespace", namespace).Logger()
	log.Debug().Msg("namespace disabled, using noop tier")
	return &noopTier{log: log}
}

// Get always returns ErrNotFound since the tier stores nothing.
func (n *noopTier) Get(_ context.Context, key string) ([]byte, error) {
	n.log.Debug().Str("key", key).Bool("hit", false).Msg("cache get")
	return nil, ErrNotFound
}

// Set is a no-op that always succeeds.
func (n *noopTier) Set(_ context.Context, _ string, _ []byte) error {
	return nil
}

// Delete is a no-op that always succeeds.
func (n *noopTier) Delete(_ context.Context, _ string) error {
	return nil
}

// Clear is a no-op that always succeeds.
func (n *noopTier) Clear(_ context.Context) error {
	return nil
}

// CleanupExpired is a no-op; there is never anything to sweep.
func (n *noopTier) CleanupExpired(_ context.Context) (int, error) {
	return 0, nil
}

// Stats returns zeroed statistics.
func (n *noopTier) Stats() TierStats {
	return TierStats{}
}

var _ Tier = (*noopTier)(nil)
