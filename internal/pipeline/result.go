package pipeline

import "time"

// Params is a named configuration bag passed to workers. Pipelines merge
// their global params with stage-local ones at execution time, stage-local
// values taking precedence on key collision.
type Params map[string]any

// Get reads a typed value from a Params bag, returning fallback when the key
// is absent or holds a different type.
func Get[T any](p Params, key string, fallback T) T {
	if v, ok := p[key]; ok {
		if typed, ok := v.(T); ok {
			return typed
		}
	}
	return fallback
}

// Result is the outcome of a Processor or Pipeline invocation.
// Exactly one of Data and Err is meaningfully populated depending on Success.
type Result struct {
	// Data is the output payload. Set only on success.
	Data any

	// Err is the underlying failure. Set only on failure.
	Err error

	// Message is a human-readable summary naming the processor or pipeline.
	Message string

	// Metrics is a free-form bag of run-level observations.
	Metrics map[string]any

	// Stages lists the per-stage results of a pipeline run, in execution
	// order. Skipped stages are absent. Empty for plain processor results.
	Stages []StageResult

	// Duration is the wall-clock time of the invocation.
	Duration time.Duration

	// Success reports whether the invocation succeeded.
	Success bool

	// CacheHit reports whether the output was served from cache without
	// invoking the wrapped work.
	CacheHit bool
}

// StageResult records one executed pipeline stage.
type StageResult struct {
	Name     string
	Err      error
	Duration time.Duration
	Success  bool
	CacheHit bool
}
