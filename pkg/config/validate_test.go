package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	return DefaultConfig()
}

func TestValidateDefaults(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate() failed on defaults: %v", err)
	}
}

func TestValidateFieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "empty listen address",
			mutate: func(c *Config) { c.Server.ListenAddress = "" },
			field:  "server.listen_address",
		},
		{
			name:   "empty events path",
			mutate: func(c *Config) { c.Storage.EventsPath = "" },
			field:  "storage.events_path",
		},
		{
			name:   "negative busy timeout",
			mutate: func(c *Config) { c.Storage.BusyTimeout = -1 },
			field:  "storage.busy_timeout",
		},
		{
			name:   "zero recorder write timeout",
			mutate: func(c *Config) { c.Recorder.WriteTimeout = 0 },
			field:  "recorder.write_timeout",
		},
		{
			name:   "invalid rollup schedule",
			mutate: func(c *Config) { c.Rollup.Schedule = "every other tuesday" },
			field:  "rollup.schedule",
		},
		{
			name:   "negative lookback",
			mutate: func(c *Config) { c.Rollup.Lookback = -1 },
			field:  "rollup.lookback",
		},
		{
			name:   "negative retention days",
			mutate: func(c *Config) { c.Retention.Days = -1 },
			field:  "retention.days",
		},
		{
			name: "archive enabled without path",
			mutate: func(c *Config) {
				c.Retention.ArchiveBeforeDelete = true
				c.Retention.ArchivePath = ""
			},
			field: "retention.archive_path",
		},
		{
			name:   "invalid budget schedule",
			mutate: func(c *Config) { c.Budgets.Schedule = "61 * * * *" },
			field:  "budgets.schedule",
		},
		{
			name:   "zero insight window",
			mutate: func(c *Config) { c.Insights.WindowDays = 0 },
			field:  "insights.window_days",
		},
		{
			name:   "invalid log level",
			mutate: func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			field:  "telemetry.logging.level",
		},
		{
			name:   "invalid log format",
			mutate: func(c *Config) { c.Telemetry.Logging.Format = "logfmt" },
			field:  "telemetry.logging.format",
		},
		{
			name:   "metrics path without slash",
			mutate: func(c *Config) { c.Telemetry.Metrics.Path = "metrics" },
			field:  "telemetry.metrics.path",
		},
		{
			name: "non-increasing buckets",
			mutate: func(c *Config) {
				c.Telemetry.Metrics.WriteDurationBuckets = []float64{0.1, 0.1, 0.5}
			},
			field: "telemetry.metrics.write_duration_buckets",
		},
		{
			name: "unsupported trace exporter",
			mutate: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				ApplyDefaults(c)
				c.Telemetry.Tracing.Exporter = "jaeger"
			},
			field: "telemetry.tracing.exporter",
		},
		{
			name: "tracing enabled without endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				ApplyDefaults(c)
				c.Telemetry.Tracing.Endpoint = ""
			},
			field: "telemetry.tracing.endpoint",
		},
		{
			name: "unknown sampler",
			mutate: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				ApplyDefaults(c)
				c.Telemetry.Tracing.Sampler = "sometimes"
			},
			field: "telemetry.tracing.sampler",
		},
		{
			name: "sample ratio out of range",
			mutate: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				ApplyDefaults(c)
				c.Telemetry.Tracing.SampleRatio = 1.5
			},
			field: "telemetry.tracing.sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() returned %T, want ValidationError", err)
			}

			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %q in %v", tt.field, verr.Errors)
			}
		})
	}
}

func TestValidateDisabledMetricsSkipsMetricChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Metrics.Enabled = false
	cfg.Telemetry.Metrics.Path = "no-slash"

	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() checked metrics fields while disabled: %v", err)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ListenAddress = ""
	cfg.Storage.EventsPath = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	if !strings.Contains(err.Error(), "2 errors") {
		t.Errorf("error message should count failures: %q", err.Error())
	}
}
