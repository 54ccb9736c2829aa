// Package metrics wires the engine's counters and gauges into
// go-ethereum's metrics registry (the same instrumentation surface the
// teacher's own subsystems register against). It also carries a
// prometheus.Registry with no collectors registered on it; none of the
// values above are exported to it. This package serves neither registry
// over HTTP (out of scope per the admin-surface boundary).
package metrics

import (
	"time"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every gauge/counter/timer the engine updates during
// steady-state operation.
type Metrics struct {
	ActiveIntentCount gethmetrics.Gauge
	CursorEventSeq    gethmetrics.Gauge
	LastPollTs        gethmetrics.Gauge
	PipelineDuration  gethmetrics.Timer
	SolutionsPassed   gethmetrics.Counter
	SolutionsFailed   gethmetrics.Counter

	Registry *prometheus.Registry
}

// New registers every metric on a fresh go-ethereum registry and creates
// an empty Prometheus registry alongside it.
func New() *Metrics {
	registry := gethmetrics.NewRegistry()
	m := &Metrics{
		ActiveIntentCount: gethmetrics.NewRegisteredGauge("preranking/active_intent_count", registry),
		CursorEventSeq:    gethmetrics.NewRegisteredGauge("preranking/cursor_event_seq", registry),
		LastPollTs:        gethmetrics.NewRegisteredGauge("preranking/last_poll_ts", registry),
		PipelineDuration:  gethmetrics.NewRegisteredTimer("preranking/pipeline_duration", registry),
		SolutionsPassed:   gethmetrics.NewRegisteredCounter("preranking/solutions_passed", registry),
		SolutionsFailed:   gethmetrics.NewRegisteredCounter("preranking/solutions_failed", registry),
		Registry:          prometheus.NewRegistry(),
	}
	return m
}

// RecordFlush sets the active-intent gauge to activeCount.
func (m *Metrics) RecordFlush(activeCount int) {
	m.ActiveIntentCount.Update(int64(activeCount))
}

// RecordPoll sets the cursor gauge to eventSeq and the poll-timestamp
// gauge to pollTsMs.
func (m *Metrics) RecordPoll(eventSeq uint64, pollTsMs int64) {
	m.CursorEventSeq.Update(int64(eventSeq))
	m.LastPollTs.Update(pollTsMs)
}

// RecordOutcome tallies a pipeline result and times the run.
func (m *Metrics) RecordOutcome(passed bool, duration time.Duration) {
	m.PipelineDuration.Update(duration)
	if passed {
		m.SolutionsPassed.Inc(1)
	} else {
		m.SolutionsFailed.Inc(1)
	}
}
