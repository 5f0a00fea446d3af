// Package metrics provides Prometheus metrics collection for the
// telemetry engine.
//
// # Overview
//
// The metrics package implements Prometheus metrics for monitoring the
// ingestion and evaluation pipeline: events recorded, rollup buckets
// computed, budget alerts fired, insights generated, and raw events
// purged by retention.
//
// # Metrics Categories
//
//   - Pipeline Metrics: events accepted/rejected/dropped, write latency,
//     aggregation runs and durations, purge runs
//   - Engine Metrics: budget evaluation passes, fired alerts by
//     severity, generated insights by category
//
// # Usage
//
//	// Create collector
//	collector := metrics.NewCollector(cfg, nil)
//
//	// Record pipeline activity
//	collector.RecordEvent("api_call", "openai", 2*time.Millisecond)
//	collector.RecordAggregation("hourly", "success", 40*time.Millisecond, 24)
//
//	// Record engine activity
//	collector.RecordAlertFired("warning")
//	collector.RecordInsight("performance", "critical")
//
//	// Expose the /metrics endpoint
//	http.Handle("/metrics", collector.Handler())
//
// # Cardinality
//
// Dimension labels come from user telemetry, so the collector caps the
// number of unique (stream, dimension) pairs; past the cap new
// dimensions are folded into an "other" label.
package metrics
