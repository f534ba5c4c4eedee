// Package metrics tracks operational counters for the analysis pipeline.
package metrics

import (
	"errors"
	"sync/atomic"

	"pumpadvisor/internal/llm"
)

// Metrics captures shared stats across HTTP and watcher-driven analyses.
type Metrics struct {
	analysesStarted    int64
	analysesSucceeded  int64
	analysesFailed     int64
	completionFailures int64
}

// Snapshot provides a consistent view of the current counters.
type Snapshot struct {
	AnalysesStarted    int64 `json:"analyses_started"`
	AnalysesSucceeded  int64 `json:"analyses_succeeded"`
	AnalysesFailed     int64 `json:"analyses_failed"`
	CompletionFailures int64 `json:"completion_failures"`
}

// New creates a zeroed Metrics instance.
func New() *Metrics {
	return &Metrics{}
}

// RecordStart increments the started counter.
func (m *Metrics) RecordStart() {
	atomic.AddInt64(&m.analysesStarted, 1)
}

// RecordCompletion increments success/failure counters based on outcome.
func (m *Metrics) RecordCompletion(err error) {
	if err == nil {
		atomic.AddInt64(&m.analysesSucceeded, 1)
		return
	}
	atomic.AddInt64(&m.analysesFailed, 1)
	if errors.Is(err, llm.ErrCompletion) {
		atomic.AddInt64(&m.completionFailures, 1)
	}
}

// Snapshot returns a read-only view of the counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		AnalysesStarted:    atomic.LoadInt64(&m.analysesStarted),
		AnalysesSucceeded:  atomic.LoadInt64(&m.analysesSucceeded),
		AnalysesFailed:     atomic.LoadInt64(&m.analysesFailed),
		CompletionFailures: atomic.LoadInt64(&m.completionFailures),
	}
}
