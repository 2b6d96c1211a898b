package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/comicframes/internal/cache"
	"github.com/omarluq/comicframes/internal/pipeline"
)

func newTestManager(t *testing.T) *cache.Manager {
	t.Helper()
	cfg := cache.DefaultConfig()
	cfg.BaseDir = t.TempDir()
	m, err := cache.NewManager(cfg)
	require.NoError(t, err)
	return m
}

// upperWorker uppercases string input and counts invocations.
type upperWorker struct {
	calls atomic.Int64
}

func (w *upperWorker) Name() string { return "upper" }

func (w *upperWorker) Work(_ context.Context, input any, _ pipeline.Params) (any, error) {
	w.calls.Add(1)
	s, ok := input.(string)
	if !ok {
		return nil, fmt.Errorf("want string, got %T", input)
	}
	return strings.ToUpper(s), nil
}

// failWorker always fails.
type failWorker struct{}

func (failWorker) Name() string { return "fail" }

func (failWorker) Work(context.Context, any, pipeline.Params) (any, error) {
	return nil, errors.New("boom")
}

// panicWorker always panics.
type panicWorker struct{}

func (panicWorker) Name() string { return "panic" }

func (panicWorker) Work(context.Context, any, pipeline.Params) (any, error) {
	panic("unexpected condition")
}

func TestProcessor_Success(t *testing.T) {
	w := &upperWorker{}
	proc := pipeline.NewProcessor(w, pipeline.WithManager(newTestManager(t)))

	res := proc.Process(context.Background(), "hello", nil)

	require.True(t, res.Success)
	assert.Equal(t, "HELLO", res.Data)
	assert.False(t, res.CacheHit)
	assert.NoError(t, res.Err)

	m := proc.Metrics()
	assert.Equal(t, uint64(1), m.TotalCalls)
	assert.Equal(t, uint64(1), m.SuccessfulCalls)
	assert.Equal(t, uint64(0), m.FailedCalls)
	assert.Equal(t, 1.0, m.SuccessRate)
}

func TestProcessor_CacheHitSkipsWork(t *testing.T) {
	w := &upperWorker{}
	proc := pipeline.NewProcessor(w, pipeline.WithManager(newTestManager(t)))
	ctx := context.Background()

	first := proc.Process(ctx, "hello", nil)
	require.True(t, first.Success)
	require.False(t, first.CacheHit)

	second := proc.Process(ctx, "hello", nil)
	require.True(t, second.Success)
	assert.True(t, second.CacheHit)
	assert.Equal(t, "HELLO", second.Data)

	// The work ran only once; the second call was served from cache
	assert.Equal(t, int64(1), w.calls.Load())

	// Metrics still count both invocations
	m := proc.Metrics()
	assert.Equal(t, uint64(2), m.TotalCalls)
	assert.Equal(t, uint64(2), m.SuccessfulCalls)
}

func TestProcessor_DistinctParamsMissCache(t *testing.T) {
	w := &upperWorker{}
	proc := pipeline.NewProcessor(w, pipeline.WithManager(newTestManager(t)))
	ctx := context.Background()

	proc.Process(ctx, "hello", pipeline.Params{"variant": 1})
	res := proc.Process(ctx, "hello", pipeline.Params{"variant": 2})

	require.True(t, res.Success)
	assert.False(t, res.CacheHit)
	assert.Equal(t, int64(2), w.calls.Load())
}

func TestProcessor_WithoutCaching(t *testing.T) {
	w := &upperWorker{}
	proc := pipeline.NewProcessor(w,
		pipeline.WithManager(newTestManager(t)),
		pipeline.WithoutCaching(),
	)
	ctx := context.Background()

	proc.Process(ctx, "hello", nil)
	res := proc.Process(ctx, "hello", nil)

	assert.False(t, res.CacheHit)
	assert.Equal(t, int64(2), w.calls.Load())
}

func TestProcessor_FailureBecomesResult(t *testing.T) {
	proc := pipeline.NewProcessor(failWorker{}, pipeline.WithManager(newTestManager(t)))

	res := proc.Process(context.Background(), "input", nil)

	assert.False(t, res.Success)
	require.Error(t, res.Err)
	assert.Contains(t, res.Message, "fail failed")

	m := proc.Metrics()
	assert.Equal(t, uint64(1), m.TotalCalls)
	assert.Equal(t, uint64(1), m.FailedCalls)
	assert.Equal(t, 0.0, m.SuccessRate)
}

func TestProcessor_PanicRecovered(t *testing.T) {
	proc := pipeline.NewProcessor(panicWorker{}, pipeline.WithManager(newTestManager(t)))

	res := proc.Process(context.Background(), "input", nil)

	assert.False(t, res.Success)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "panic")

	m := proc.Metrics()
	assert.Equal(t, uint64(1), m.FailedCalls)
}

func TestProcessor_FailuresAreNotCached(t *testing.T) {
	proc := pipeline.NewProcessor(failWorker{}, pipeline.WithManager(newTestManager(t)))
	ctx := context.Background()

	proc.Process(ctx, "input", nil)
	res := proc.Process(ctx, "input", nil)

	// Second call fails again rather than returning a cached failure
	assert.False(t, res.Success)
	assert.False(t, res.CacheHit)
	assert.Equal(t, uint64(2), proc.Metrics().FailedCalls)
}

func TestProcessor_ResetMetrics(t *testing.T) {
	w := &upperWorker{}
	proc := pipeline.NewProcessor(w, pipeline.WithManager(newTestManager(t)))

	proc.Process(context.Background(), "hello", nil)
	require.Equal(t, uint64(1), proc.Metrics().TotalCalls)

	proc.ResetMetrics()
	m := proc.Metrics()
	assert.Zero(t, m.TotalCalls)
	assert.Zero(t, m.TotalTime)
	assert.Zero(t, m.SuccessRate)
}

func TestParamsGet(t *testing.T) {
	params := pipeline.Params{"width": 75, "method": "edge"}

	assert.Equal(t, 75, pipeline.Get(params, "width", 0))
	assert.Equal(t, "edge", pipeline.Get(params, "method", "threshold"))
	// Missing key falls back
	assert.Equal(t, 100, pipeline.Get(params, "height", 100))
	// Wrong type falls back
	assert.Equal(t, "threshold", pipeline.Get(params, "width", "threshold"))
	// Nil params fall back
	assert.Equal(t, 7, pipeline.Get(nil, "anything", 7))
}
