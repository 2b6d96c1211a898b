package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// entryExt is the file extension for entry blobs.
	entryExt = ".cache"

	// indexFile is the metadata index file name within a tier directory.
	indexFile = "metadata.json"

	// evictTarget is the fraction of the size bound eviction converges to.
	evictTarget = 0.8

	// checksumLen is the length of the integrity checksum prefixed to every
	// entry blob. A payload whose checksum does not match is corrupted and
	// the entry is deleted on read.
	checksumLen = sha256.Size
)

// fileTier is a persistent, TTL-based, size-bounded blob store backed by a
// directory of digest-named entry files plus a metadata index.
//
// The index maps each digest to the original key, creation time, and size.
// Index mutations are serialized by a single mutex; index write failures are
// tolerated because the cache is an optimization layer, not a source of truth.
type fileTier struct {
	mu       sync.Mutex
	index    map[string]indexEntry
	dir      string
	ttl      time.Duration
	maxBytes int64
	log      zerolog.Logger
}

// indexEntry is the persisted metadata for one cache entry.
// The original key is retained for diagnostics only; entries are always
// addressed by digest.
type indexEntry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// Ensure fileTier implements the Tier interface.
var _ Tier = (*fileTier)(nil)

// NewFileTier creates a file tier rooted at dir with the given namespace
// configuration. The directory is created if missing and the metadata index
// is loaded from it; a missing or unreadable index degrades to an empty one.
func NewFileTier(dir string, cfg NamespaceConfig) (Tier, error) {
	log := logger().With().Str("tier", "file").Str("dir", dir).Logger()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("cache: create tier directory: %w", err)
	}

	t := &fileTier{
		index:    make(map[string]indexEntry),
		dir:      dir,
		ttl:      cfg.TTL(),
		maxBytes: cfg.MaxSizeMB << 20,
		log:      log,
	}
	t.loadIndex()

	log.Debug().
		Int64("max_size_mb", cfg.MaxSizeMB).
		Dur("ttl", t.ttl).
		Int("entries", len(t.index)).
		Msg("file tier opened")

	return t, nil
}

// Get retrieves a value from the tier.
// Returns ErrNotFound if the key does not exist or has expired. A corrupted
// entry is removed and reported as a miss; corruption never propagates.
func (t *fileTier) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest := digestKey(key)

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.index[digest]
	if !ok || time.Since(entry.CreatedAt) > t.ttl {
		t.log.Debug().Str("key", key).Bool("hit", false).Msg("cache get")
		return nil, ErrNotFound
	}

	payload, err := t.readEntryLocked(digest)
	if err != nil {
		// Broken or missing blob: drop it from the index so later reads and
		// stats do not keep seeing a phantom entry.
		t.removeEntryLocked(digest)
		t.saveIndexLocked()
		t.log.Warn().Err(err).Str("key", key).Msg("cache entry unreadable, removed")
		return nil, ErrNotFound
	}

	t.log.Debug().Str("key", key).Bool("hit", true).Int("size", len(payload)).Msg("cache get")
	return payload, nil
}

// readEntryLocked reads and integrity-checks one entry blob.
// Caller must hold t.mu.
func (t *fileTier) readEntryLocked(digest string) ([]byte, error) {
	raw, err := os.ReadFile(t.entryPath(digest))
	if err != nil {
		return nil, err
	}
	if len(raw) < checksumLen {
		return nil, ErrCorrupted
	}
	payload := raw[checksumLen:]
	sum := sha256.Sum256(payload)
	if !bytes.Equal(raw[:checksumLen], sum[:]) {
		return nil, ErrCorrupted
	}
	return payload, nil
}

// Set stores a value in the tier, updates the metadata index, and evicts
// oldest entries if the write pushed the tier over its size bound.
// A returned error means the value was not cached; callers treat that as
// a skipped write, never a failure of the primary computation.
func (t *fileTier) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	digest := digestKey(key)
	sum := sha256.Sum256(value)
	blob := make([]byte, 0, checksumLen+len(value))
	blob = append(blob, sum[:]...)
	blob = append(blob, value...)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := writeFileAtomic(t.entryPath(digest), blob); err != nil {
		t.log.Debug().Err(err).Str("key", key).Msg("cache write failed")
		return err
	}

	t.index[digest] = indexEntry{
		Key:       key,
		CreatedAt: time.Now(),
		SizeBytes: int64(len(blob)),
	}
	t.saveIndexLocked()

	t.log.Debug().Str("key", key).Int("size", len(value)).Msg("cache set")

	t.evictIfNeededLocked()
	return nil
}

// Delete removes a key from the tier. Idempotent.
func (t *fileTier) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	digest := digestKey(key)
	if _, ok := t.index[digest]; !ok {
		// Blob may exist without an index record after a lost metadata
		// write; remove it anyway.
		_ = os.Remove(t.entryPath(digest))
		return nil
	}
	t.removeEntryLocked(digest)
	t.saveIndexLocked()
	return nil
}

// Clear removes every entry and resets the metadata index.
func (t *fileTier) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(t.dir, "*"+entryExt))
	if err == nil {
		for _, path := range matches {
			_ = os.Remove(path)
		}
	}
	t.index = make(map[string]indexEntry)
	t.saveIndexLocked()

	t.log.Debug().Msg("cache cleared")
	return nil
}

// CleanupExpired sweeps the metadata index and removes every entry whose age
// exceeds the TTL, deleting both the blob and its index record.
func (t *fileTier) CleanupExpired(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	now := time.Now()
	for digest, entry := range t.index {
		if now.Sub(entry.CreatedAt) > t.ttl {
			t.removeEntryLocked(digest)
			removed++
		}
	}
	if removed > 0 {
		t.saveIndexLocked()
		t.log.Debug().Int("removed", removed).Msg("expired cache entries swept")
	}
	return removed, nil
}

// Stats returns current tier statistics.
func (t *fileTier) Stats() TierStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	expired := 0
	var sizeBytes int64
	now := time.Now()
	for _, entry := range t.index {
		if now.Sub(entry.CreatedAt) > t.ttl {
			expired++
		}
		sizeBytes += entry.SizeBytes
	}

	total := len(t.index)
	sizeMB := float64(sizeBytes) / (1 << 20)
	maxMB := t.maxBytes >> 20
	return TierStats{
		TotalEntries:   total,
		ActiveEntries:  total - expired,
		ExpiredEntries: expired,
		SizeMB:         roundMB(sizeMB),
		MaxSizeMB:      maxMB,
		UsagePercent:   percent(sizeMB, float64(maxMB)),
	}
}

// SizeMB returns the current on-disk size of entry blobs in megabytes.
// It walks the tier directory rather than trusting the index, so entries
// orphaned by lost metadata writes are still counted.
func (t *fileTier) SizeMB() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return roundMB(float64(t.diskSizeLocked()) / (1 << 20))
}

// diskSizeLocked sums the size of all entry blobs on disk.
// Caller must hold t.mu.
func (t *fileTier) diskSizeLocked() int64 {
	var total int64
	matches, err := filepath.Glob(filepath.Join(t.dir, "*"+entryExt))
	if err != nil {
		return 0
	}
	for _, path := range matches {
		if info, err := os.Stat(path); err == nil {
			total += info.Size()
		}
	}
	return total
}

// evictIfNeededLocked evicts entries oldest-first until total size falls to
// evictTarget of the configured bound. A failure to delete one blob never
// corrupts index records for entries not being evicted.
// Caller must hold t.mu.
func (t *fileTier) evictIfNeededLocked() {
	current := t.diskSizeLocked()
	if current <= t.maxBytes {
		return
	}

	type aged struct {
		digest string
		entry  indexEntry
	}
	entries := make([]aged, 0, len(t.index))
	for digest, entry := range t.index {
		entries = append(entries, aged{digest: digest, entry: entry})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].entry.CreatedAt.Before(entries[j].entry.CreatedAt)
	})

	target := int64(float64(t.maxBytes) * evictTarget)
	evicted := 0
	for _, e := range entries {
		if current <= target {
			break
		}
		current -= e.entry.SizeBytes
		t.removeEntryLocked(e.digest)
		evicted++
	}
	t.saveIndexLocked()

	t.log.Debug().
		Int("evicted", evicted).
		Int64("size_bytes", current).
		Msg("cache size bound enforced")
}

// removeEntryLocked deletes one blob and its index record without persisting
// the index. Caller must hold t.mu and persist the index afterwards.
func (t *fileTier) removeEntryLocked(digest string) {
	_ = os.Remove(t.entryPath(digest))
	delete(t.index, digest)
}

func (t *fileTier) entryPath(digest string) string {
	return filepath.Join(t.dir, digest+entryExt)
}

func (t *fileTier) indexPath() string {
	return filepath.Join(t.dir, indexFile)
}

// loadIndex reads the metadata index from disk. A missing or corrupted index
// resets to empty; entries then look absent and re-fill over time.
func (t *fileTier) loadIndex() {
	raw, err := os.ReadFile(t.indexPath())
	if err != nil {
		return
	}
	var index map[string]indexEntry
	if err := json.Unmarshal(raw, &index); err != nil {
		t.log.Warn().Err(err).Msg("cache index unreadable, starting empty")
		return
	}
	t.index = index
}

// saveIndexLocked persists the metadata index. Failures are logged and
// otherwise ignored: losing a metadata write degrades to treating entries as
// missing, it never raises. Caller must hold t.mu.
func (t *fileTier) saveIndexLocked() {
	raw, err := json.MarshalIndent(t.index, "", "  ")
	if err != nil {
		t.log.Warn().Err(err).Msg("cache index marshal failed")
		return
	}
	if err := writeFileAtomic(t.indexPath(), raw); err != nil {
		t.log.Warn().Err(err).Msg("cache index write failed")
	}
}

// writeFileAtomic writes data via a temp file and rename so that readers and
// crash recovery never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func roundMB(mb float64) float64 {
	return float64(int(mb*100+0.5)) / 100
}
