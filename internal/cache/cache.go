// Package cache provides the multi-tier caching layer for comicframes.
//
// The package composes two kinds of storage tiers behind a single Manager:
//   - A file tier: persistent, TTL-based, size-bounded blob storage backed by
//     a directory of digest-named files plus a metadata index. One independent
//     instance per logical namespace (frame, model, processing).
//   - A memory tier: a bounded, thread-safe, TTL-based in-process store for
//     small, hot, short-lived values.
//
// Caching is always best-effort. Tier faults (serialization, disk I/O,
// corruption, metadata writes) degrade to cache misses or skipped writes and
// are never surfaced to callers of the Manager's write path.
//
// All implementations are safe for concurrent use.
//
// Basic usage:
//
//	mgr, err := cache.NewManager(cache.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	mgr.SetFrameData(ctx, "page-3", data)
//
//	data, err := mgr.GetFrameData(ctx, "page-3")
//	if errors.Is(err, cache.ErrNotFound) {
//		// Cache miss
//	}
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Tier defines the contract for a blob storage tier.
// Values are opaque byte payloads addressed by a caller-supplied logical key.
// All implementations must be safe for concurrent use.
type Tier interface {
	// Get retrieves a value from the tier.
	// Returns ErrNotFound if the key does not exist or has expired.
	// A stale entry is never returned.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the tier. Storing is best-effort: a returned
	// error means the value was simply not cached.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key from the tier.
	// Returns nil if the key does not exist (idempotent).
	Delete(ctx context.Context, key string) error

	// Clear removes every entry from the tier.
	Clear(ctx context.Context) error

	// CleanupExpired eagerly removes every entry whose age exceeds the TTL
	// and returns the number of entries removed. Periodic invocation is the
	// caller's responsibility; no tier runs background sweeps on its own.
	CleanupExpired(ctx context.Context) (int, error)

	// Stats returns current tier statistics.
	Stats() TierStats
}

// TierStats provides tier statistics for observability.
type TierStats struct {
	// TotalEntries is the number of entries currently held, expired or not.
	TotalEntries int `json:"total_entries"`

	// ActiveEntries is the number of entries within their TTL.
	ActiveEntries int `json:"active_entries"`

	// ExpiredEntries is the number of entries past their TTL that have not
	// been swept yet.
	ExpiredEntries int `json:"expired_entries"`

	// SizeMB is the current on-disk size in megabytes (file tiers only).
	SizeMB float64 `json:"size_mb,omitempty"`

	// MaxSizeMB is the configured size bound in megabytes (file tiers only).
	MaxSizeMB int64 `json:"max_size_mb,omitempty"`

	// MaxEntries is the configured entry-count bound (memory tier only).
	MaxEntries int `json:"max_entries,omitempty"`

	// UsagePercent is utilization relative to the configured bound.
	UsagePercent float64 `json:"usage_percent"`
}

// digestKey derives the fixed-length digest used to address a cache entry.
// Entries are never addressed by the raw logical key: the digest bounds
// filesystem path length and avoids illegal characters. The raw key is kept
// in tier metadata for diagnostics only.
func digestKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
