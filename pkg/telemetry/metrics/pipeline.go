package metrics

import (
	"time"

	"devguard-hq/devguard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics covers the ingestion and aggregation path: events in,
// rollup buckets out, old events purged.
type PipelineMetrics struct {
	eventsTotal   *prometheus.CounterVec
	rejectedTotal *prometheus.CounterVec
	droppedTotal  *prometheus.CounterVec
	writeDuration *prometheus.HistogramVec

	aggregationRuns     *prometheus.CounterVec
	aggregationDuration *prometheus.HistogramVec
	bucketsComputed     prometheus.Counter

	purgedTotal prometheus.Counter
	purgeRuns   *prometheus.CounterVec
}

// NewPipelineMetrics creates and registers the pipeline metrics.
func NewPipelineMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PipelineMetrics {
	m := &PipelineMetrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "events_total",
				Help:      "Total telemetry events accepted, by stream and dimension.",
			},
			[]string{"stream", "dimension"},
		),
		rejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "events_rejected_total",
				Help:      "Total telemetry events rejected by validation, by stream.",
			},
			[]string{"stream"},
		),
		droppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "events_dropped_total",
				Help:      "Total telemetry events dropped by the async recorder, by stream.",
			},
			[]string{"stream"},
		),
		writeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "event_write_duration_seconds",
				Help:      "Latency of durable event writes.",
				Buckets:   cfg.WriteDurationBuckets,
			},
			[]string{"stream"},
		),
		aggregationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "aggregation_runs_total",
				Help:      "Total aggregation runs, by bucket width and status.",
			},
			[]string{"width", "status"},
		),
		aggregationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "aggregation_duration_seconds",
				Help:      "Duration of aggregation runs.",
				Buckets:   cfg.RunDurationBuckets,
			},
			[]string{"width"},
		),
		bucketsComputed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rollup_buckets_computed_total",
				Help:      "Total rollup buckets written.",
			},
		),
		purgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "events_purged_total",
				Help:      "Total raw events deleted by retention.",
			},
		),
		purgeRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "purge_runs_total",
				Help:      "Total retention purge runs, by completeness.",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.eventsTotal,
		m.rejectedTotal,
		m.droppedTotal,
		m.writeDuration,
		m.aggregationRuns,
		m.aggregationDuration,
		m.bucketsComputed,
		m.purgedTotal,
		m.purgeRuns,
	)

	return m
}

// RecordEvent records one accepted event and its write latency.
func (m *PipelineMetrics) RecordEvent(stream, dimension string, writeDuration time.Duration) {
	m.eventsTotal.WithLabelValues(stream, dimension).Inc()
	m.writeDuration.WithLabelValues(stream).Observe(writeDuration.Seconds())
}

// RecordRejected records one validation rejection.
func (m *PipelineMetrics) RecordRejected(stream string) {
	m.rejectedTotal.WithLabelValues(stream).Inc()
}

// RecordDropped records one dropped event.
func (m *PipelineMetrics) RecordDropped(stream string) {
	m.droppedTotal.WithLabelValues(stream).Inc()
}

// RecordAggregation records one aggregation run.
func (m *PipelineMetrics) RecordAggregation(width, status string, duration time.Duration, buckets int) {
	m.aggregationRuns.WithLabelValues(width, status).Inc()
	m.aggregationDuration.WithLabelValues(width).Observe(duration.Seconds())
	m.bucketsComputed.Add(float64(buckets))
}

// RecordPurge records one purge run.
func (m *PipelineMetrics) RecordPurge(deleted int64, partial bool) {
	m.purgedTotal.Add(float64(deleted))
	result := "complete"
	if partial {
		result = "partial"
	}
	m.purgeRuns.WithLabelValues(result).Inc()
}
