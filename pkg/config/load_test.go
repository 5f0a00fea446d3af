package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  events_path: /tmp/devguard/events.db
retention:
  days: 14
telemetry:
  logging:
    level: warn
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Storage.EventsPath != "/tmp/devguard/events.db" {
		t.Errorf("EventsPath = %q", cfg.Storage.EventsPath)
	}
	if cfg.Retention.Days != 14 {
		t.Errorf("Retention.Days = %d, want 14", cfg.Retention.Days)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Telemetry.Logging.Level)
	}

	// Fields absent from the file keep their defaults
	if cfg.Storage.BudgetsPath != DefaultBudgetsPath {
		t.Errorf("BudgetsPath = %q, want default", cfg.Storage.BudgetsPath)
	}
	if cfg.Budgets.Schedule != DefaultBudgetSchedule {
		t.Errorf("Budgets.Schedule = %q, want default", cfg.Budgets.Schedule)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadConfig() expected error for missing file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "storage: [not a mapping")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() expected error for invalid YAML")
	}
}

func TestLoadConfigInvalidValues(t *testing.T) {
	path := writeConfigFile(t, `
budgets:
  schedule: "not a cron expression"
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() expected validation error")
	}
}

func TestLoadConfigExplicitFalsePreserved(t *testing.T) {
	path := writeConfigFile(t, `
telemetry:
  metrics:
    enabled: false
  logging:
    redact_secrets: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Telemetry.Metrics.Enabled {
		t.Error("explicit metrics.enabled=false was overridden by defaults")
	}
	if cfg.Telemetry.Logging.RedactSecrets {
		t.Error("explicit redact_secrets=false was overridden by defaults")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  events_path: /from/file.db
retention:
  days: 14
`)

	t.Setenv("DEVGUARD_STORAGE_EVENTS_PATH", "/from/env.db")
	t.Setenv("DEVGUARD_RETENTION_DAYS", "7")
	t.Setenv("DEVGUARD_ROLLUP_LOOKBACK", "24h")
	t.Setenv("DEVGUARD_METRICS_ENABLED", "false")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() failed: %v", err)
	}

	if cfg.Storage.EventsPath != "/from/env.db" {
		t.Errorf("EventsPath = %q, want env override", cfg.Storage.EventsPath)
	}
	if cfg.Retention.Days != 7 {
		t.Errorf("Retention.Days = %d, want 7", cfg.Retention.Days)
	}
	if cfg.Rollup.Lookback != 24*time.Hour {
		t.Errorf("Rollup.Lookback = %v, want 24h", cfg.Rollup.Lookback)
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("DEVGUARD_METRICS_ENABLED=false not applied")
	}
}

func TestLoadConfigTracingSection(t *testing.T) {
	path := writeConfigFile(t, `
telemetry:
  tracing:
    enabled: true
    endpoint: collector:4317
    sampler: always
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if !cfg.Telemetry.Tracing.Enabled {
		t.Error("tracing.enabled not loaded")
	}
	if cfg.Telemetry.Tracing.Endpoint != "collector:4317" {
		t.Errorf("Endpoint = %q", cfg.Telemetry.Tracing.Endpoint)
	}
	if cfg.Telemetry.Tracing.Sampler != "always" {
		t.Errorf("Sampler = %q, want always", cfg.Telemetry.Tracing.Sampler)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Telemetry.Tracing.ServiceName != DefaultTracingServiceName {
		t.Errorf("ServiceName = %q, want default", cfg.Telemetry.Tracing.ServiceName)
	}
	if cfg.Telemetry.Tracing.Exporter != DefaultTracingExporter {
		t.Errorf("Exporter = %q, want default", cfg.Telemetry.Tracing.Exporter)
	}
}

func TestLoadConfigTracingEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "")

	t.Setenv("DEVGUARD_TRACING_ENABLED", "true")
	t.Setenv("DEVGUARD_TRACING_ENDPOINT", "otel-collector:4317")
	t.Setenv("DEVGUARD_TRACING_SAMPLER", "never")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() failed: %v", err)
	}

	if !cfg.Telemetry.Tracing.Enabled {
		t.Error("DEVGUARD_TRACING_ENABLED=true not applied")
	}
	if cfg.Telemetry.Tracing.Endpoint != "otel-collector:4317" {
		t.Errorf("Endpoint = %q, want env override", cfg.Telemetry.Tracing.Endpoint)
	}
	if cfg.Telemetry.Tracing.Sampler != "never" {
		t.Errorf("Sampler = %q, want never", cfg.Telemetry.Tracing.Sampler)
	}
}

func TestLoadConfigWithEnvOverridesRevalidates(t *testing.T) {
	path := writeConfigFile(t, "")

	t.Setenv("DEVGUARD_BUDGETS_SCHEDULE", "13 37 not cron")

	if _, err := LoadConfigWithEnvOverrides(path); err == nil {
		t.Fatal("expected validation error after env overrides")
	}
}
