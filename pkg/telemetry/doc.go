// Package telemetry provides observability for the DevGuard engine.
//
// # Overview
//
// The telemetry package implements structured logging, Prometheus metrics,
// OpenTelemetry distributed tracing, and health check endpoints. It provides
// visibility into the ingestion and aggregation pipeline while keeping the
// event recording hot path cheap.
//
// # Components
//
//   - logging: Structured logging with secret redaction
//   - metrics: Prometheus metrics collection
//   - tracing: OpenTelemetry distributed tracing
//   - health: Liveness and readiness endpoints
//
// # Usage
//
//	// Structured logging
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	logger.Install()
//
//	// Metrics
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordEvent("api_call", "endpoint-a", 450*time.Microsecond)
//
//	// Tracing
//	ctx, span := tracing.Start(ctx, "rollup.aggregate")
//	defer span.End()
//
//	// Health
//	checker := health.New(0)
//	checker.Register("event_store", health.StoreCheck(store))
//
// # Secret Protection
//
// By default, secrets are automatically redacted from logs: API keys,
// bearer tokens, connection strings, and passwords. Custom redaction
// patterns can be configured.
package telemetry
