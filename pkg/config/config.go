// Package config provides configuration management for the DevGuard
// telemetry engine.
package config

import (
	"time"

	"devguard-hq/devguard/pkg/telemetry/logging"
)

// Config is the root configuration structure for the engine.
// It is loaded from YAML files with environment variable overrides.
type Config struct {
	// Server contains the operational HTTP listener configuration.
	Server ServerConfig `yaml:"server"`

	// Storage contains database paths and connection settings.
	Storage StorageConfig `yaml:"storage"`

	// Recorder contains event ingestion configuration.
	Recorder RecorderConfig `yaml:"recorder"`

	// Rollup contains aggregation scheduling configuration.
	Rollup RollupConfig `yaml:"rollup"`

	// Retention contains raw event retention configuration.
	Retention RetentionConfig `yaml:"retention"`

	// Budgets contains budget evaluation configuration.
	Budgets BudgetsConfig `yaml:"budgets"`

	// Insights contains insight generation configuration.
	Insights InsightsConfig `yaml:"insights"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains the operational HTTP listener settings.
// The listener serves the Prometheus metrics endpoint and health checks;
// it is not part of the ingestion path.
type ServerConfig struct {
	// ListenAddress is the address for the operational listener.
	// Default: ":9090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout is the graceful shutdown timeout.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig contains database file paths and connection settings.
// Events, budgets, and insights live in separate SQLite databases so
// retention pruning never contends with budget or insight writes.
type StorageConfig struct {
	// EventsPath is the SQLite database file for raw events and rollups.
	// Default: "data/metering.db"
	EventsPath string `yaml:"events_path"`

	// BudgetsPath is the SQLite database file for budgets and alerts.
	// Default: "data/budgets.db"
	BudgetsPath string `yaml:"budgets_path"`

	// InsightsPath is the SQLite database file for insights.
	// Default: "data/insights.db"
	InsightsPath string `yaml:"insights_path"`

	// BusyTimeout is the duration to wait when a database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// MaxOpenConns is the maximum number of open connections per
	// database. SQLite supports a single writer.
	// Default: 1
	MaxOpenConns int `yaml:"max_open_conns"`
}

// RecorderConfig contains event ingestion settings.
type RecorderConfig struct {
	// AsyncBuffer is the size of the async write channel buffer.
	// When the buffer is full, Record blocks until space is available
	// or the write timeout expires.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout is the timeout for writing an event to storage.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RollupConfig contains aggregation scheduling settings.
type RollupConfig struct {
	// Schedule is a cron expression for aggregation runs.
	// Empty disables scheduled aggregation.
	// Default: "0 */6 * * *" (every 6 hours)
	Schedule string `yaml:"schedule"`

	// Lookback is how far back each run re-aggregates. Re-running over
	// an already-aggregated range is safe: recomputation is idempotent.
	// Default: 48h
	Lookback time.Duration `yaml:"lookback"`
}

// RetentionConfig contains raw event retention settings.
type RetentionConfig struct {
	// Days is the number of days to retain raw events.
	// 0 keeps events forever (no pruning).
	// Default: 90
	Days int `yaml:"days"`

	// Schedule is a cron expression for scheduled pruning.
	// Default: "0 3 * * *" (daily at 03:00 UTC)
	Schedule string `yaml:"schedule"`

	// ArchiveBeforeDelete exports events to a JSON archive before
	// deleting them.
	// Default: false
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// ArchivePath is the directory for event archives.
	// Default: "data/archives/"
	ArchivePath string `yaml:"archive_path"`
}

// BudgetsConfig contains budget evaluation settings.
type BudgetsConfig struct {
	// Schedule is a cron expression for budget evaluation runs.
	// Default: "0 * * * *" (hourly, matching the hourly rollup cadence)
	Schedule string `yaml:"schedule"`
}

// InsightsConfig contains insight generation settings.
type InsightsConfig struct {
	// Schedule is a cron expression for insight generation runs.
	// Default: "30 0 * * *" (daily, after the previous day's rollups close)
	Schedule string `yaml:"schedule"`

	// WindowDays is the observation window rules compare against.
	// Default: 30
	WindowDays int `yaml:"window_days"`
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets enables automatic secret redaction in logs.
	// Redacts API keys, bearer tokens, connection strings, passwords.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`

	// RedactPatterns contains custom redaction patterns applied in
	// addition to the built-in ones.
	RedactPatterns []logging.RedactPattern `yaml:"redact_patterns"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "devguard"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "metering"
	Subsystem string `yaml:"subsystem"`

	// WriteDurationBuckets defines histogram buckets for event write
	// latency (seconds).
	// Default: [0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0]
	WriteDurationBuckets []float64 `yaml:"write_duration_buckets"`

	// RunDurationBuckets defines histogram buckets for aggregation and
	// evaluation run duration (seconds).
	// Default: [0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0]
	RunDurationBuckets []float64 `yaml:"run_duration_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
// Spans cover the scheduled pipeline runs: aggregation, budget
// evaluation, insight generation, and retention pruning.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this service in trace backends.
	// Default: "devguard"
	ServiceName string `yaml:"service_name"`

	// Exporter selects the span exporter. Only "otlp" is supported.
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Sampler selects the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces sampled when Sampler is
	// "ratio". Must be between 0.0 and 1.0.
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// OTLP contains exporter transport settings.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter transport settings.
type OTLPConfig struct {
	// Insecure disables TLS on the collector connection. Use for local
	// collectors only.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export call.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
