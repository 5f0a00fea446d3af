package metrics

import (
	"time"

	"devguard-hq/devguard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics covers the evaluation side: budget checks, fired
// alerts, and generated insights.
type EngineMetrics struct {
	evaluationRuns     prometheus.Counter
	evaluationDuration prometheus.Histogram
	alertsFired        *prometheus.CounterVec
	insightsGenerated  *prometheus.CounterVec
}

// NewEngineMetrics creates and registers the engine metrics.
func NewEngineMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EngineMetrics {
	m := &EngineMetrics{
		evaluationRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "budget_evaluations_total",
				Help:      "Total budget evaluation passes.",
			},
		),
		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "budget_evaluation_duration_seconds",
				Help:      "Duration of budget evaluation passes.",
				Buckets:   cfg.RunDurationBuckets,
			},
		),
		alertsFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "alerts_fired_total",
				Help:      "Total budget alerts fired, by severity.",
			},
			[]string{"severity"},
		),
		insightsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "insights_generated_total",
				Help:      "Total insights generated, by category and severity.",
			},
			[]string{"category", "severity"},
		),
	}

	registry.MustRegister(
		m.evaluationRuns,
		m.evaluationDuration,
		m.alertsFired,
		m.insightsGenerated,
	)

	return m
}

// RecordEvaluation records one budget evaluation pass.
func (m *EngineMetrics) RecordEvaluation(duration time.Duration) {
	m.evaluationRuns.Inc()
	m.evaluationDuration.Observe(duration.Seconds())
}

// RecordAlert records one fired alert.
func (m *EngineMetrics) RecordAlert(severity string) {
	m.alertsFired.WithLabelValues(severity).Inc()
}

// RecordInsight records one generated insight.
func (m *EngineMetrics) RecordInsight(category, severity string) {
	m.insightsGenerated.WithLabelValues(category, severity).Inc()
}
