package model

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/comicframes/internal/cache"
)

func newTestCacheManager(t *testing.T) *cache.Manager {
	t.Helper()
	cfg := cache.DefaultConfig()
	cfg.BaseDir = t.TempDir()
	m, err := cache.NewManager(cfg)
	require.NoError(t, err)
	return m
}

func newTestLoader(t *testing.T, registry *Registry) (*Loader, string) {
	t.Helper()
	modelsDir := t.TempDir()
	loader := NewLoader(registry, newTestCacheManager(t), modelsDir, 5*time.Second, zerolog.Nop())
	return loader, modelsDir
}

func TestLoader_DownloadsAndCaches(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("weights-payload"))
	}))
	defer server.Close()

	registry := NewRegistry()
	registry.Register(Config{
		Name:        "test_model",
		Type:        TypeObjectDetection,
		FileName:    "test_model.bin",
		DownloadURL: server.URL,
	})
	loader, modelsDir := newTestLoader(t, registry)
	ctx := context.Background()

	result, err := loader.Ensure(ctx, "test_model")
	require.NoError(t, err)
	assert.True(t, result.Downloaded)
	assert.False(t, result.Cached)
	assert.Equal(t, filepath.Join(modelsDir, "test_model.bin"), result.Path)

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, "weights-payload", string(data))
	assert.Equal(t, int64(1), hits.Load())

	// Already on disk: no download, no cache restore
	result, err = loader.Ensure(ctx, "test_model")
	require.NoError(t, err)
	assert.False(t, result.Downloaded)
	assert.False(t, result.Cached)
	assert.Equal(t, int64(1), hits.Load())

	// Weights file lost: restored from the model cache, still no download
	require.NoError(t, os.Remove(result.Path))
	result, err = loader.Ensure(ctx, "test_model")
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.False(t, result.Downloaded)
	assert.Equal(t, int64(1), hits.Load())
	assert.FileExists(t, result.Path)
}

func TestLoader_UnknownModel(t *testing.T) {
	loader, _ := newTestLoader(t, NewRegistry())

	_, err := loader.Ensure(context.Background(), "nonexistent")
	require.ErrorIs(t, err, ErrUnknownModel)
}

func TestLoader_NoWeightsModel(t *testing.T) {
	loader, _ := newTestLoader(t, NewRegistry())

	// film_net carries settings only, nothing to download
	result, err := loader.Ensure(context.Background(), "film_net")
	require.NoError(t, err)
	assert.Empty(t, result.Path)
	assert.False(t, result.Downloaded)
}

func TestLoader_MissingWeightsWithoutURL(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Config{
		Name:     "local_only",
		Type:     TypeObjectDetection,
		FileName: "local_only.bin",
	})
	loader, _ := newTestLoader(t, registry)

	_, err := loader.Ensure(context.Background(), "local_only")
	require.Error(t, err)
}

func TestLoader_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := NewRegistry()
	registry.Register(Config{
		Name:        "flaky_model",
		Type:        TypeObjectDetection,
		FileName:    "flaky_model.bin",
		DownloadURL: server.URL,
	})
	loader, _ := newTestLoader(t, registry)
	ctx := context.Background()

	for range downloadFailureThreshold {
		_, err := loader.Ensure(ctx, "flaky_model")
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrDownloadUnavailable)
	}

	// Breaker is open now; the next attempt is rejected without a request
	_, err := loader.Ensure(ctx, "flaky_model")
	require.ErrorIs(t, err, ErrDownloadUnavailable)
}

func TestLoader_UsesExistingFile(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Config{
		Name:     "present",
		Type:     TypeObjectDetection,
		FileName: "present.bin",
	})
	loader, modelsDir := newTestLoader(t, registry)
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "present.bin"), []byte("w"), 0o600))

	result, err := loader.Ensure(context.Background(), "present")
	require.NoError(t, err)
	assert.False(t, result.Downloaded)
	assert.False(t, result.Cached)
	assert.Equal(t, filepath.Join(modelsDir, "present.bin"), result.Path)
}
