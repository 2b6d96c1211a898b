package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Pipeline executes an ordered sequence of processors, threading each stage's
// output into the next stage's input. A stage whose gate predicate evaluates
// false is skipped entirely; a stage failure halts the pipeline immediately.
//
// Stages are appended at configuration time and must not be added once
// execution has begun. A pipeline may be re-executed any number of times and
// accumulates metrics across runs. Process is safe for concurrent callers.
type Pipeline struct {
	log     zerolog.Logger
	name    string
	stages  []stage
	metrics RunMetrics
}

type stage struct {
	proc   *Processor
	gate   func(any) bool
	params Params
	name   string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the pipeline logger.
func WithPipelineLogger(log zerolog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.log = log.With().Str("pipeline", p.name).Logger()
	}
}

// New creates an empty pipeline with the given name.
func New(name string, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		name: name,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StageOption configures one stage at the time it is added.
type StageOption func(*stage)

// WithStageName overrides the stage name, which otherwise defaults to the
// processor's own name. Stage names key the per-stage metrics breakdown.
func WithStageName(name string) StageOption {
	return func(s *stage) {
		s.name = name
	}
}

// WithGate attaches a predicate over the pipeline's current data value.
// When it evaluates false the stage is skipped: no metrics update, no cache
// interaction, data passes through unchanged.
func WithGate(gate func(any) bool) StageOption {
	return func(s *stage) {
		s.gate = gate
	}
}

// WithStageParams sets stage-local parameters, merged over the pipeline's
// global parameters at execution time.
func WithStageParams(params Params) StageOption {
	return func(s *stage) {
		s.params = params
	}
}

// AddStage appends a stage and returns the pipeline for chaining.
func (p *Pipeline) AddStage(proc *Processor, opts ...StageOption) *Pipeline {
	s := stage{
		proc: proc,
		name: proc.Name(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	p.stages = append(p.stages, s)
	return p
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// StageCount returns the number of configured stages.
func (p *Pipeline) StageCount() int {
	return len(p.stages)
}

// Metrics returns a snapshot of the accumulated run metrics.
func (p *Pipeline) Metrics() RunMetricsSnapshot {
	return p.metrics.Snapshot()
}

// ResetMetrics zeroes the accumulated run metrics.
func (p *Pipeline) ResetMetrics() {
	p.metrics.Reset()
}

// Process executes the pipeline on the input. With zero stages the input
// passes through unchanged. Process never panics out to its caller: a fault
// in orchestration itself is converted to a failed Result the same way a
// stage failure is.
func (p *Pipeline) Process(ctx context.Context, input any, global Params) (res Result) {
	start := time.Now()
	runID := uuid.NewString()
	log := p.log.With().Str("run_id", runID).Logger()

	var stageResults []StageResult

	defer func() {
		if r := recover(); r != nil {
			d := time.Since(start)
			p.metrics.record(d, false, stageResults)
			err := fmt.Errorf("pipeline %q: panic: %v", p.name, r)
			log.Error().Err(err).Msg("pipeline run panicked")
			res = Result{
				Err:      err,
				Message:  err.Error(),
				Duration: d,
				Stages:   stageResults,
				Metrics:  p.runBag(runID, len(stageResults)),
			}
		}
	}()

	current := input
	for i, st := range p.stages {
		if st.gate != nil && !st.gate(current) {
			log.Debug().Int("stage", i).Str("name", st.name).Msg("stage skipped, gate not met")
			continue
		}

		merged := Params(lo.Assign(map[string]any(global), map[string]any(st.params)))

		log.Debug().Int("stage", i).Str("name", st.name).Msg("executing stage")
		r := st.proc.Process(ctx, current, merged)

		if !r.Success {
			stageResults = append(stageResults, StageResult{
				Name:     st.name,
				Err:      r.Err,
				Duration: r.Duration,
			})
			d := time.Since(start)
			p.metrics.record(d, false, stageResults)
			log.Debug().Int("stage", i).Str("name", st.name).Err(r.Err).Msg("pipeline halted")
			return Result{
				Err:      r.Err,
				Message:  fmt.Sprintf("pipeline %q failed at stage %d (%s): %v", p.name, i, st.name, r.Err),
				Duration: d,
				Stages:   stageResults,
				Metrics:  p.runBag(runID, len(stageResults)),
			}
		}

		current = r.Data
		stageResults = append(stageResults, StageResult{
			Name:     st.name,
			Success:  true,
			Duration: r.Duration,
			CacheHit: r.CacheHit,
		})
	}

	d := time.Since(start)
	p.metrics.record(d, true, stageResults)
	return Result{
		Success:  true,
		Data:     current,
		Message:  fmt.Sprintf("pipeline %q completed", p.name),
		Duration: d,
		Stages:   stageResults,
		Metrics:  p.runBag(runID, len(stageResults)),
	}
}

// runBag builds the free-form metrics bag attached to every run result.
func (p *Pipeline) runBag(runID string, executed int) map[string]any {
	return map[string]any{
		"run_id":          runID,
		"total_stages":    len(p.stages),
		"executed_stages": executed,
	}
}
