package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "storage.events_path").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateRecorder(&cfg.Recorder)...)
	errs = append(errs, validateRollup(&cfg.Rollup)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateBudgets(&cfg.Budgets)...)
	errs = append(errs, validateInsights(&cfg.Insights)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must not be negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must not be negative",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must not be negative",
		})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	if cfg.EventsPath == "" {
		errs = append(errs, FieldError{
			Field:   "storage.events_path",
			Message: "events database path is required",
		})
	}
	if cfg.BudgetsPath == "" {
		errs = append(errs, FieldError{
			Field:   "storage.budgets_path",
			Message: "budgets database path is required",
		})
	}
	if cfg.InsightsPath == "" {
		errs = append(errs, FieldError{
			Field:   "storage.insights_path",
			Message: "insights database path is required",
		})
	}
	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "storage.busy_timeout",
			Message: "busy timeout must not be negative",
		})
	}
	if cfg.MaxOpenConns < 0 {
		errs = append(errs, FieldError{
			Field:   "storage.max_open_conns",
			Message: "max open connections must not be negative",
		})
	}

	return errs
}

func validateRecorder(cfg *RecorderConfig) []FieldError {
	var errs []FieldError

	if cfg.AsyncBuffer < 0 {
		errs = append(errs, FieldError{
			Field:   "recorder.async_buffer",
			Message: "async buffer size must not be negative",
		})
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "recorder.write_timeout",
			Message: "write timeout must be positive",
		})
	}

	return errs
}

func validateRollup(cfg *RollupConfig) []FieldError {
	var errs []FieldError

	if cfg.Schedule != "" {
		errs = append(errs, validateCron("rollup.schedule", cfg.Schedule)...)
	}
	if cfg.Lookback <= 0 {
		errs = append(errs, FieldError{
			Field:   "rollup.lookback",
			Message: "lookback must be positive",
		})
	}

	return errs
}

func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "retention.days",
			Message: "retention days must not be negative (0 keeps events forever)",
		})
	}
	if cfg.Schedule != "" {
		errs = append(errs, validateCron("retention.schedule", cfg.Schedule)...)
	}
	if cfg.ArchiveBeforeDelete && cfg.ArchivePath == "" {
		errs = append(errs, FieldError{
			Field:   "retention.archive_path",
			Message: "archive path is required when archive_before_delete is enabled",
		})
	}

	return errs
}

func validateBudgets(cfg *BudgetsConfig) []FieldError {
	if cfg.Schedule == "" {
		return nil
	}
	return validateCron("budgets.schedule", cfg.Schedule)
}

func validateInsights(cfg *InsightsConfig) []FieldError {
	var errs []FieldError

	if cfg.Schedule != "" {
		errs = append(errs, validateCron("insights.schedule", cfg.Schedule)...)
	}
	if cfg.WindowDays <= 0 {
		errs = append(errs, FieldError{
			Field:   "insights.window_days",
			Message: "observation window must be positive",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Path == "" || !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path must start with /",
			})
		}
		errs = append(errs, validateBuckets("telemetry.metrics.write_duration_buckets", cfg.Metrics.WriteDurationBuckets)...)
		errs = append(errs, validateBuckets("telemetry.metrics.run_duration_buckets", cfg.Metrics.RunDurationBuckets)...)
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Exporter != "otlp" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.exporter",
				Message: fmt.Sprintf("unsupported exporter %q (only otlp is supported)", cfg.Tracing.Exporter),
			})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "collector endpoint is required when tracing is enabled",
			})
		}
		switch cfg.Tracing.Sampler {
		case "always", "never":
		case "ratio":
			if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
				errs = append(errs, FieldError{
					Field:   "telemetry.tracing.sample_ratio",
					Message: fmt.Sprintf("sample ratio must be between 0.0 and 1.0, got %v", cfg.Tracing.SampleRatio),
				})
			}
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q (must be always, never, or ratio)", cfg.Tracing.Sampler),
			})
		}
	}

	return errs
}

// validateCron checks a cron expression against the standard 5-field
// parser used by the schedulers.
func validateCron(field, expr string) []FieldError {
	if _, err := cron.ParseStandard(expr); err != nil {
		return []FieldError{{
			Field:   field,
			Message: fmt.Sprintf("invalid cron expression %q: %v", expr, err),
		}}
	}
	return nil
}

// validateBuckets checks that histogram buckets are positive and
// strictly increasing.
func validateBuckets(field string, buckets []float64) []FieldError {
	var errs []FieldError

	for i, b := range buckets {
		if b <= 0 {
			errs = append(errs, FieldError{
				Field:   field,
				Message: fmt.Sprintf("bucket %d must be positive, got %v", i, b),
			})
			continue
		}
		if i > 0 && b <= buckets[i-1] {
			errs = append(errs, FieldError{
				Field:   field,
				Message: fmt.Sprintf("buckets must be strictly increasing, bucket %d (%v) <= bucket %d (%v)", i, b, i-1, buckets[i-1]),
			})
		}
	}

	return errs
}
