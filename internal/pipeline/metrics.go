package pipeline

import (
	"sync"
	"time"
)

// Metrics accumulates per-processor counters. Counters are monotonic and
// updated under a mutex so Process may be called concurrently on one
// instance; derived quantities (average time, success rate) are recomputed
// from the counters at read time and can never drift.
type Metrics struct {
	mu              sync.Mutex
	totalCalls      uint64
	successfulCalls uint64
	failedCalls     uint64
	totalTime       time.Duration
}

// record updates the counters for one completed call.
func (m *Metrics) record(d time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalCalls++
	m.totalTime += d
	if success {
		m.successfulCalls++
	} else {
		m.failedCalls++
	}
}

// Reset zeroes all counters.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalCalls = 0
	m.successfulCalls = 0
	m.failedCalls = 0
	m.totalTime = 0
}

// Snapshot returns a consistent view of the counters with derived quantities.
// AverageTime and SuccessRate are zero when no calls have been recorded.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		TotalCalls:      m.totalCalls,
		SuccessfulCalls: m.successfulCalls,
		FailedCalls:     m.failedCalls,
		TotalTime:       m.totalTime,
	}
	if m.totalCalls > 0 {
		snap.AverageTime = m.totalTime / time.Duration(m.totalCalls)
		snap.SuccessRate = float64(m.successfulCalls) / float64(m.totalCalls)
	}
	return snap
}

// MetricsSnapshot is a point-in-time view of processor metrics.
type MetricsSnapshot struct {
	TotalCalls      uint64        `json:"total_calls"`
	SuccessfulCalls uint64        `json:"successful_calls"`
	FailedCalls     uint64        `json:"failed_calls"`
	TotalTime       time.Duration `json:"total_time"`
	AverageTime     time.Duration `json:"average_time"`
	SuccessRate     float64       `json:"success_rate"`
}

// RunMetrics accumulates pipeline-level counters across repeated Process
// invocations, including a per-stage-name breakdown. Stages sharing a name
// across runs contribute to the same breakdown entry.
type RunMetrics struct {
	mu             sync.Mutex
	stages         map[string]*stageAggregate
	totalRuns      uint64
	successfulRuns uint64
	failedRuns     uint64
	totalTime      time.Duration
}

type stageAggregate struct {
	Runs      uint64        `json:"runs"`
	Successes uint64        `json:"successes"`
	CacheHits uint64        `json:"cache_hits"`
	TotalTime time.Duration `json:"total_time"`
}

// record updates run counters and the per-stage breakdown for one run.
func (m *RunMetrics) record(d time.Duration, success bool, stages []StageResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stages == nil {
		m.stages = make(map[string]*stageAggregate)
	}

	m.totalRuns++
	m.totalTime += d
	if success {
		m.successfulRuns++
	} else {
		m.failedRuns++
	}

	for _, sr := range stages {
		agg, ok := m.stages[sr.Name]
		if !ok {
			agg = &stageAggregate{}
			m.stages[sr.Name] = agg
		}
		agg.Runs++
		agg.TotalTime += sr.Duration
		if sr.Success {
			agg.Successes++
		}
		if sr.CacheHit {
			agg.CacheHits++
		}
	}
}

// Reset zeroes all counters and the stage breakdown.
func (m *RunMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalRuns = 0
	m.successfulRuns = 0
	m.failedRuns = 0
	m.totalTime = 0
	m.stages = nil
}

// Snapshot returns a consistent view of the run counters with derived
// quantities and a copy of the per-stage breakdown.
func (m *RunMetrics) Snapshot() RunMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := RunMetricsSnapshot{
		TotalRuns:      m.totalRuns,
		SuccessfulRuns: m.successfulRuns,
		FailedRuns:     m.failedRuns,
		TotalTime:      m.totalTime,
		Stages:         make(map[string]StageMetrics, len(m.stages)),
	}
	if m.totalRuns > 0 {
		snap.AverageTime = m.totalTime / time.Duration(m.totalRuns)
		snap.SuccessRate = float64(m.successfulRuns) / float64(m.totalRuns)
	}
	for name, agg := range m.stages {
		snap.Stages[name] = StageMetrics{
			Runs:      agg.Runs,
			Successes: agg.Successes,
			CacheHits: agg.CacheHits,
			TotalTime: agg.TotalTime,
		}
	}
	return snap
}

// RunMetricsSnapshot is a point-in-time view of pipeline metrics.
type RunMetricsSnapshot struct {
	Stages         map[string]StageMetrics `json:"stages"`
	TotalRuns      uint64                  `json:"total_runs"`
	SuccessfulRuns uint64                  `json:"successful_runs"`
	FailedRuns     uint64                  `json:"failed_runs"`
	TotalTime      time.Duration           `json:"total_time"`
	AverageTime    time.Duration           `json:"average_time"`
	SuccessRate    float64                 `json:"success_rate"`
}

// StageMetrics is the accumulated breakdown for one stage name.
type StageMetrics struct {
	Runs      uint64        `json:"runs"`
	Successes uint64        `json:"successes"`
	CacheHits uint64        `json:"cache_hits"`
	TotalTime time.Duration `json:"total_time"`
}
