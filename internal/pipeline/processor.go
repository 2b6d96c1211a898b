// Package pipeline provides the staged processing core of comicframes:
// a Processor wrapper that gives any unit of work uniform caching, error
// conversion, and metrics, and a Pipeline that chains such units into an
// ordered sequence with per-stage gating and halt-on-failure semantics.
//
// Workers implement a single method; caching and metrics come for free:
//
//	type doubler struct{}
//
//	func (doubler) Name() string { return "double" }
//	func (doubler) Work(_ context.Context, input any, _ pipeline.Params) (any, error) {
//		return input.(int) * 2, nil
//	}
//
//	proc := pipeline.NewProcessor(doubler{}, pipeline.WithManager(mgr))
//	res := proc.Process(ctx, 21, nil)
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"github.com/omarluq/comicframes/internal/cache"
)

// Worker is the unit-of-work extension point. Implementers supply the actual
// computation; Processor supplies caching, metrics, and uniform error
// conversion around it.
type Worker interface {
	// Name identifies the worker in logs, metrics, and cache keys.
	Name() string

	// Work performs the computation. Returning an error (or panicking) is
	// converted by the wrapping Processor into a failed Result.
	Work(ctx context.Context, input any, params Params) (any, error)
}

// CacheKeyer is an optional interface for workers that derive domain-specific
// cache keys, e.g. incorporating a source file's modification time so edited
// inputs always miss. A returned error skips caching for that call; it is
// never surfaced.
//
// Use a type assertion to check for it, as with the other optional
// capability interfaces in this package.
type CacheKeyer interface {
	CacheKey(input any, params Params) (string, error)
}

// Codec is an optional interface for workers whose outputs need typed
// (de)serialization at the cache tier boundary. Without it, outputs round-trip
// through JSON and decode into generic values.
type Codec interface {
	// EncodeOutput serializes a successful output for storage.
	EncodeOutput(out any) ([]byte, error)

	// DecodeOutput reconstructs an output from its stored form.
	DecodeOutput(data []byte) (any, error)
}

// Processor wraps a Worker with cache-key derivation, cache lookup and store
// around the computation, timing, and running success/failure metrics.
// Process never panics out to its caller; every fault becomes a failed
// Result. Safe for concurrent use.
type Processor struct {
	worker  Worker
	manager *cache.Manager
	metrics Metrics
	log     zerolog.Logger
	caching bool
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithManager sets the cache manager the processor stores results through.
// Without it the process-wide default manager is used.
func WithManager(m *cache.Manager) ProcessorOption {
	return func(p *Processor) {
		p.manager = m
	}
}

// WithoutCaching disables result caching for this processor.
func WithoutCaching() ProcessorOption {
	return func(p *Processor) {
		p.caching = false
	}
}

// WithLogger sets the processor logger.
func WithLogger(log zerolog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.log = log.With().Str("processor", p.worker.Name()).Logger()
	}
}

// NewProcessor wraps a worker. Caching is enabled by default and goes through
// the processing namespace of the configured cache manager.
func NewProcessor(worker Worker, opts ...ProcessorOption) *Processor {
	p := &Processor{
		worker:  worker,
		caching: true,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.manager == nil && p.caching {
		p.manager = cache.Default()
	}
	return p
}

// Name returns the wrapped worker's name.
func (p *Processor) Name() string {
	return p.worker.Name()
}

// Metrics returns a snapshot of the processor's accumulated metrics.
func (p *Processor) Metrics() MetricsSnapshot {
	return p.metrics.Snapshot()
}

// ResetMetrics zeroes the processor's accumulated metrics.
func (p *Processor) ResetMetrics() {
	p.metrics.Reset()
}

// Process runs the wrapped work with caching, error handling, and metrics.
// On a cache hit the work is skipped entirely and the Result reports
// CacheHit. Metrics are updated exactly once per invocation regardless of
// hit, miss, or failure.
func (p *Processor) Process(ctx context.Context, input any, params Params) (res Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d := time.Since(start)
			p.metrics.record(d, false)
			err := fmt.Errorf("%s: panic: %v", p.worker.Name(), r)
			p.log.Error().Err(err).Msg("worker panicked")
			res = Result{
				Err:      err,
				Message:  err.Error(),
				Duration: d,
			}
		}
	}()

	key := mo.None[string]()
	if p.caching {
		key = p.deriveKey(input, params)
	}

	if k, present := key.Get(); present {
		if out, ok := p.lookup(ctx, k); ok {
			d := time.Since(start)
			p.metrics.record(d, true)
			p.log.Debug().Str("key", k).Msg("cache hit")
			return Result{
				Success:  true,
				Data:     out,
				CacheHit: true,
				Duration: d,
				Message:  p.worker.Name() + " completed (cached)",
			}
		}
	}

	out, err := p.worker.Work(ctx, input, params)
	d := time.Since(start)
	if err != nil {
		p.metrics.record(d, false)
		p.log.Debug().Err(err).Msg("worker failed")
		return Result{
			Err:      err,
			Message:  fmt.Sprintf("%s failed: %v", p.worker.Name(), err),
			Duration: d,
		}
	}

	if k, present := key.Get(); present && out != nil {
		p.store(ctx, k, out)
	}

	p.metrics.record(d, true)
	return Result{
		Success:  true,
		Data:     out,
		Duration: d,
		Message:  p.worker.Name() + " completed",
	}
}

// lookup fetches and decodes a cached output. A missing, corrupted, or
// undecodable entry is a miss.
func (p *Processor) lookup(ctx context.Context, key string) (any, bool) {
	blob, err := p.manager.GetProcessingData(ctx, key)
	if err != nil {
		return nil, false
	}
	out, err := p.codec().DecodeOutput(blob)
	if err != nil {
		p.log.Debug().Err(err).Str("key", key).Msg("cached output undecodable, treating as miss")
		return nil, false
	}
	return out, true
}

// store encodes and caches a successful output, best-effort.
func (p *Processor) store(ctx context.Context, key string, out any) {
	blob, err := p.codec().EncodeOutput(out)
	if err != nil {
		p.log.Debug().Err(err).Str("key", key).Msg("output not cacheable")
		return
	}
	p.manager.SetProcessingData(ctx, key, blob)
}

// deriveKey derives the cache key for one call. Workers implementing
// CacheKeyer take precedence; otherwise the key is a digest over the worker
// name, the input representation, and the sorted params. Derivation failure
// of either kind yields None and caching is skipped for the call.
func (p *Processor) deriveKey(input any, params Params) (key mo.Option[string]) {
	defer func() {
		// Representations of arbitrary inputs may panic in String methods.
		if r := recover(); r != nil {
			p.log.Debug().Any("panic", r).Msg("cache key derivation failed")
			key = mo.None[string]()
		}
	}()

	if keyer, ok := p.worker.(CacheKeyer); ok {
		k, err := keyer.CacheKey(input, params)
		if err != nil {
			p.log.Debug().Err(err).Msg("cache key derivation failed")
			return mo.None[string]()
		}
		return mo.Some(k)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(p.worker.Name())
	b.WriteByte(0)
	fmt.Fprintf(&b, "%#v", input)
	b.WriteByte(0)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%#v;", k, params[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return mo.Some(hex.EncodeToString(sum[:]))
}

// codec returns the worker's typed codec when it provides one, else the
// JSON default.
func (p *Processor) codec() Codec {
	if c, ok := p.worker.(Codec); ok {
		return c
	}
	return jsonCodec{}
}

// jsonCodec is the default tier-boundary codec. Decoded outputs are generic
// JSON values; workers needing their concrete types back implement Codec.
type jsonCodec struct{}

func (jsonCodec) EncodeOutput(out any) ([]byte, error) {
	return json.Marshal(out)
}

func (jsonCodec) DecodeOutput(data []byte) (any, error) {
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
