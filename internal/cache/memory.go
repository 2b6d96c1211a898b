package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Memory is a bounded, thread-safe, TTL-based in-process key/value store.
// Unlike the file tiers it holds arbitrary in-memory values rather than
// serialized blobs, so it does not implement the Tier interface.
//
// Capacity is bounded by entry count. Inserting a new key at capacity evicts
// exactly one entry: the one with the oldest write timestamp. Reads never
// refresh an entry's age; frequently read entries expire on the same schedule
// as untouched ones.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	log        zerolog.Logger
}

type memoryEntry struct {
	value     any
	writtenAt time.Time
}

// NewMemory creates a memory tier with the given configuration.
func NewMemory(cfg MemoryConfig) *Memory {
	log := logger().With().Str("tier", "memory").Logger()

	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultConfig().Memory.MaxEntries
	}
	ttl := cfg.TTL()
	if ttl <= 0 {
		ttl = DefaultConfig().Memory.TTL()
	}

	return &Memory{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		log:        log,
	}
}

// Get retrieves a value. The second return value reports whether a live entry
// was found. Expiry is checked lazily: an entry past its TTL is removed and
// treated as absent, never returned stale.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.writtenAt) > m.ttl {
		delete(m.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Set stores a value. If the key is new and the tier is at capacity, the
// entry with the oldest write timestamp is evicted first.
func (m *Memory) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evictOldestLocked()
	}
	m.entries[key] = memoryEntry{value: value, writtenAt: time.Now()}
}

// evictOldestLocked removes the entry with the oldest write timestamp.
// Caller must hold m.mu.
func (m *Memory) evictOldestLocked() {
	if len(m.entries) == 0 {
		return
	}
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, entry := range m.entries {
		if first || entry.writtenAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.writtenAt
			first = false
		}
	}
	delete(m.entries, oldestKey)
	m.log.Debug().Str("key", oldestKey).Msg("memory tier evicted oldest entry")
}

// Delete removes a key. Idempotent.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Clear removes every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
}

// CleanupExpired eagerly removes every entry whose age exceeds the TTL and
// returns the number removed. Intended for periodic invocation by an external
// scheduler; the tier never sweeps on its own.
func (m *Memory) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	now := time.Now()
	for key, entry := range m.entries {
		if now.Sub(entry.writtenAt) > m.ttl {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Stats returns current tier statistics.
func (m *Memory) Stats() TierStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	now := time.Now()
	for _, entry := range m.entries {
		if now.Sub(entry.writtenAt) > m.ttl {
			expired++
		}
	}

	total := len(m.entries)
	return TierStats{
		TotalEntries:   total,
		ActiveEntries:  total - expired,
		ExpiredEntries: expired,
		MaxEntries:     m.maxEntries,
		UsagePercent:   percent(float64(total), float64(m.maxEntries)),
	}
}

// Len returns the current entry count, expired entries included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func percent(used, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(int(used/capacity*1000+0.5)) / 10
}
