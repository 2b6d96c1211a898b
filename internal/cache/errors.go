package cache

import "errors"

// Standard errors for cache operations.
//
// Use errors.Is to check for these errors:
//
//	data, err := mgr.GetFrameData(ctx, key)
//	if errors.Is(err, cache.ErrNotFound) {
//		// handle cache miss
//	}
var (
	// ErrNotFound is returned when a key does not exist, has expired, or its
	// entry was found corrupted and removed.
	ErrNotFound = errors.New("cache: key not found")

	// ErrCorrupted is returned internally when an entry blob fails its
	// integrity check. Callers of Get never see it; the broken entry is
	// removed and the miss is reported as ErrNotFound.
	ErrCorrupted = errors.New("cache: entry corrupted")
)
