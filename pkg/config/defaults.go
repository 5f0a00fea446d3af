package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = ":9090"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	// Storage defaults
	DefaultEventsPath   = "data/metering.db"
	DefaultBudgetsPath  = "data/budgets.db"
	DefaultInsightsPath = "data/insights.db"
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1

	// Recorder defaults
	DefaultRecorderAsyncBuffer  = 1000
	DefaultRecorderWriteTimeout = 5 * time.Second

	// Rollup defaults
	DefaultRollupSchedule = "0 */6 * * *"
	DefaultRollupLookback = 48 * time.Hour

	// Retention defaults
	DefaultRetentionDays     = 90
	DefaultRetentionSchedule = "0 3 * * *"
	DefaultArchivePath       = "data/archives/"

	// Budget defaults
	DefaultBudgetSchedule = "0 * * * *"

	// Insight defaults
	DefaultInsightSchedule   = "30 0 * * *"
	DefaultInsightWindowDays = 30

	// Telemetry defaults
	DefaultLoggingLevel   = "info"
	DefaultLoggingFormat  = "json"
	DefaultMetricsEnabled = true
	DefaultMetricsPath    = "/metrics"
	DefaultNamespace      = "devguard"
	DefaultSubsystem      = "metering"

	// Tracing defaults
	DefaultTracingServiceName = "devguard"
	DefaultTracingExporter    = "otlp"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultOTLPTimeout        = 10 * time.Second
)

// DefaultConfig returns a configuration with every field set to its
// default value. LoadConfig unmarshals YAML over this base, so fields
// absent from the file keep their defaults while explicit values,
// including explicit false for true-default booleans, win.
func DefaultConfig() *Config {
	cfg := &Config{
		Retention: RetentionConfig{
			Days: DefaultRetentionDays,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{
				RedactSecrets: true,
			},
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
			},
			Tracing: TracingConfig{
				OTLP: OTLPConfig{
					Insecure: true,
				},
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in default values for any zero-valued fields.
// Boolean fields are left untouched: their defaults come from
// DefaultConfig so an explicit false is distinguishable from unset.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Storage defaults
	if cfg.Storage.EventsPath == "" {
		cfg.Storage.EventsPath = DefaultEventsPath
	}
	if cfg.Storage.BudgetsPath == "" {
		cfg.Storage.BudgetsPath = DefaultBudgetsPath
	}
	if cfg.Storage.InsightsPath == "" {
		cfg.Storage.InsightsPath = DefaultInsightsPath
	}
	if cfg.Storage.BusyTimeout == 0 {
		cfg.Storage.BusyTimeout = DefaultBusyTimeout
	}
	if cfg.Storage.MaxOpenConns == 0 {
		cfg.Storage.MaxOpenConns = DefaultMaxOpenConns
	}

	// Recorder defaults
	if cfg.Recorder.AsyncBuffer == 0 {
		cfg.Recorder.AsyncBuffer = DefaultRecorderAsyncBuffer
	}
	if cfg.Recorder.WriteTimeout == 0 {
		cfg.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}

	// Rollup defaults
	if cfg.Rollup.Schedule == "" {
		cfg.Rollup.Schedule = DefaultRollupSchedule
	}
	if cfg.Rollup.Lookback == 0 {
		cfg.Rollup.Lookback = DefaultRollupLookback
	}

	// Retention defaults. Days 0 is meaningful (keep forever), so the
	// default is only applied by DefaultConfig, not here.
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultRetentionSchedule
	}
	if cfg.Retention.ArchivePath == "" {
		cfg.Retention.ArchivePath = DefaultArchivePath
	}

	// Budget defaults
	if cfg.Budgets.Schedule == "" {
		cfg.Budgets.Schedule = DefaultBudgetSchedule
	}

	// Insight defaults
	if cfg.Insights.Schedule == "" {
		cfg.Insights.Schedule = DefaultInsightSchedule
	}
	if cfg.Insights.WindowDays == 0 {
		cfg.Insights.WindowDays = DefaultInsightWindowDays
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultSubsystem
	}
	if len(cfg.Telemetry.Metrics.WriteDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.WriteDurationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0}
	}
	if len(cfg.Telemetry.Metrics.RunDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RunDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0}
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Exporter == "" {
		cfg.Telemetry.Tracing.Exporter = DefaultTracingExporter
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.OTLP.Timeout == 0 {
		cfg.Telemetry.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}
}
