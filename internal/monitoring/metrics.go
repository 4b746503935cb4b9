// Package monitoring collects per-phase join timings and exposes them as
// Prometheus metrics and JSON summaries.
package monitoring

import (
	"sync"
	"time"

	"github.com/paveg/joinbench/internal/join"
	"github.com/prometheus/client_golang/prometheus"
)

// PhaseMetrics records one finished phase of one strategy run.
type PhaseMetrics struct {
	Strategy string        `json:"strategy"`
	Phase    join.Phase    `json:"phase"`
	Duration time.Duration `json:"duration"`
}

// RunMetrics records the outcome of one strategy run.
type RunMetrics struct {
	Strategy string `json:"strategy"`
	Matches  uint64 `json:"matches"`
	Checksum uint64 `json:"checksum"`
}

// MetricsCollector records phase timings and results. It implements
// join.PhaseObserver and mirrors everything into its Prometheus registry.
type MetricsCollector struct {
	mu      sync.RWMutex
	phases  []PhaseMetrics
	runs    []RunMetrics
	enabled bool

	registry      *prometheus.Registry
	phaseDuration *prometheus.HistogramVec
	matches       *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
}

var _ join.PhaseObserver = (*MetricsCollector)(nil)

// NewMetricsCollector creates a new metrics collector with its own registry.
func NewMetricsCollector(enabled bool) *MetricsCollector {
	mc := &MetricsCollector{
		enabled:  enabled,
		registry: prometheus.NewRegistry(),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "joinbench",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of a join phase.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20),
		}, []string{"strategy", "phase"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "joinbench",
			Name:      "matches_total",
			Help:      "Tuples produced by the probe phase.",
		}, []string{"strategy"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "joinbench",
			Name:      "runs_total",
			Help:      "Completed strategy runs.",
		}, []string{"strategy"}),
	}
	mc.registry.MustRegister(mc.phaseDuration, mc.matches, mc.runsTotal)
	return mc
}

// Registry returns the Prometheus registry holding the collector's metrics.
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// IsEnabled returns whether metrics collection is enabled.
func (mc *MetricsCollector) IsEnabled() bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.enabled
}

// SetEnabled enables or disables metrics collection.
func (mc *MetricsCollector) SetEnabled(enabled bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.enabled = enabled
}

// ObservePhase records a finished phase.
func (mc *MetricsCollector) ObservePhase(strategy string, phase join.Phase, elapsed time.Duration) {
	if !mc.IsEnabled() {
		return
	}
	mc.phaseDuration.WithLabelValues(strategy, string(phase)).Observe(elapsed.Seconds())

	mc.mu.Lock()
	mc.phases = append(mc.phases, PhaseMetrics{Strategy: strategy, Phase: phase, Duration: elapsed})
	mc.mu.Unlock()
}

// ObserveResult records a finished run.
func (mc *MetricsCollector) ObserveResult(strategy string, result join.Result) {
	if !mc.IsEnabled() {
		return
	}
	mc.matches.WithLabelValues(strategy).Add(float64(result.Matches))
	mc.runsTotal.WithLabelValues(strategy).Inc()

	mc.mu.Lock()
	mc.runs = append(mc.runs, RunMetrics{Strategy: strategy, Matches: result.Matches, Checksum: result.Checksum})
	mc.mu.Unlock()
}

// GetMetrics returns a copy of all recorded phases.
func (mc *MetricsCollector) GetMetrics() []PhaseMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make([]PhaseMetrics, len(mc.phases))
	copy(result, mc.phases)
	return result
}

// Clear removes all recorded phases and runs. Prometheus counters keep
// their values.
func (mc *MetricsCollector) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.phases = mc.phases[:0]
	mc.runs = mc.runs[:0]
}

// StrategySummary aggregates the phases of one strategy.
type StrategySummary struct {
	Runs      int                          `json:"runs"`
	Matches   uint64                       `json:"matches"`
	Checksum  uint64                       `json:"checksum"`
	PhaseTime map[join.Phase]time.Duration `json:"phase_time"`
	Total     time.Duration                `json:"total"`
}

// MetricsSummary provides aggregate statistics for recorded runs.
type MetricsSummary struct {
	TotalPhases   int                        `json:"total_phases"`
	TotalDuration time.Duration              `json:"total_duration"`
	Strategies    map[string]StrategySummary `json:"strategies"`
}

// GetSummary returns per-strategy totals.
func (mc *MetricsCollector) GetSummary() MetricsSummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	summary := MetricsSummary{Strategies: make(map[string]StrategySummary)}
	for _, p := range mc.phases {
		s := summary.Strategies[p.Strategy]
		if s.PhaseTime == nil {
			s.PhaseTime = make(map[join.Phase]time.Duration)
		}
		s.PhaseTime[p.Phase] += p.Duration
		s.Total += p.Duration
		summary.Strategies[p.Strategy] = s

		summary.TotalPhases++
		summary.TotalDuration += p.Duration
	}
	for _, r := range mc.runs {
		s := summary.Strategies[r.Strategy]
		s.Runs++
		s.Matches += r.Matches
		s.Checksum += r.Checksum
		summary.Strategies[r.Strategy] = s
	}
	return summary
}
