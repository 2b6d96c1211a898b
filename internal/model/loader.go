package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/omarluq/comicframes/internal/cache"
)

// Loader sentinel errors.
var (
	ErrUnknownModel = errors.New("model: not registered")

	// ErrDownloadUnavailable is returned when the download circuit is open
	// after repeated failures against the model host.
	ErrDownloadUnavailable = errors.New("model: download circuit open")
)

// Circuit breaker defaults for the download path.
const (
	downloadFailureThreshold = 3
	downloadOpenDuration     = 30 * time.Second
)

// LoadResult reports how a model was materialized.
type LoadResult struct {
	Name string

	// Path is the local weights file, empty for models without weights.
	Path string

	// Cached is set when the weights came from the model cache namespace
	// instead of the network.
	Cached bool

	// Downloaded is set when the weights were fetched from the network.
	Downloaded bool

	LoadTime time.Duration
}

// Loader materializes model weights on disk, preferring the local file, then
// the model cache namespace, then a circuit-protected download.
type Loader struct {
	registry  *Registry
	manager   *cache.Manager
	breaker   *gobreaker.CircuitBreaker[[]byte]
	client    *http.Client
	modelsDir string
	log       zerolog.Logger
}

// NewLoader creates a loader writing weights under modelsDir. A nil manager
// falls back to cache.Default().
func NewLoader(registry *Registry, manager *cache.Manager, modelsDir string, timeout time.Duration, log zerolog.Logger) *Loader {
	if manager == nil {
		manager = cache.Default()
	}
	logger := log.With().Str("component", "model_loader").Logger()

	settings := gobreaker.Settings{
		Name:    "model-download",
		Timeout: downloadOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= downloadFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			event := logger.Info()
			if to == gobreaker.StateOpen {
				event = logger.Warn()
			}
			event.
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &Loader{
		registry:  registry,
		manager:   manager,
		breaker:   gobreaker.NewCircuitBreaker[[]byte](settings),
		client:    &http.Client{Timeout: timeout},
		modelsDir: modelsDir,
		log:       logger,
	}
}

// Registry returns the loader's registry.
func (l *Loader) Registry() *Registry {
	return l.registry
}

// Ensure makes the named model's weights available on disk and returns where
// they landed. Models without weights succeed immediately with an empty path.
func (l *Loader) Ensure(ctx context.Context, name string) (LoadResult, error) {
	start := time.Now()

	cfg, ok := l.registry.Get(name)
	if !ok {
		return LoadResult{}, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	result := LoadResult{Name: name}
	if cfg.FileName == "" {
		result.LoadTime = time.Since(start)
		return result, nil
	}

	path := filepath.Join(l.modelsDir, cfg.FileName)
	result.Path = path
	if _, err := os.Stat(path); err == nil {
		result.LoadTime = time.Since(start)
		return result, nil
	}

	cacheKey := "model:" + name
	if data, err := l.manager.GetModelData(ctx, cacheKey); err == nil {
		if err := writeWeights(path, data); err != nil {
			return LoadResult{}, fmt.Errorf("model: write cached weights: %w", err)
		}
		result.Cached = true
		result.LoadTime = time.Since(start)
		l.log.Info().Str("model", name).Str("path", path).Msg("model restored from cache")
		return result, nil
	}

	if cfg.DownloadURL == "" {
		return LoadResult{}, fmt.Errorf("model: weights missing and no download url for %s", name)
	}

	data, err := l.download(ctx, cfg)
	if err != nil {
		return LoadResult{}, err
	}
	if err := writeWeights(path, data); err != nil {
		return LoadResult{}, fmt.Errorf("model: write downloaded weights: %w", err)
	}
	l.manager.SetModelData(ctx, cacheKey, data)

	result.Downloaded = true
	result.LoadTime = time.Since(start)
	l.log.Info().
		Str("model", name).
		Str("path", path).
		Int("bytes", len(data)).
		Dur("elapsed", result.LoadTime).
		Msg("model downloaded")
	return result, nil
}

// download fetches the weights through the circuit breaker.
func (l *Loader) download(ctx context.Context, cfg Config) ([]byte, error) {
	data, err := l.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.DownloadURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("model: download %s: unexpected status %d", cfg.Name, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrDownloadUnavailable, cfg.Name)
	}
	return data, err
}

// writeWeights writes the file atomically so a crashed download never leaves
// a truncated weights file behind.
func writeWeights(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".weights-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
