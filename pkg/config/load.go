package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// Unmarshalling starts from DefaultConfig, so fields absent from the file
// keep their defaults while explicit values win, including explicit false
// for booleans that default to true. The configuration is not modified by
// environment variables; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	// Re-apply defaults for fields explicitly set to empty in the file
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention DEVGUARD_SECTION_FIELD (e.g., DEVGUARD_STORAGE_EVENTS_PATH).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	// First load from file (this already applies defaults)
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	// Re-validate after overrides
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format DEVGUARD_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("DEVGUARD_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("DEVGUARD_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("DEVGUARD_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("DEVGUARD_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Storage overrides
	if val := os.Getenv("DEVGUARD_STORAGE_EVENTS_PATH"); val != "" {
		cfg.Storage.EventsPath = val
	}
	if val := os.Getenv("DEVGUARD_STORAGE_BUDGETS_PATH"); val != "" {
		cfg.Storage.BudgetsPath = val
	}
	if val := os.Getenv("DEVGUARD_STORAGE_INSIGHTS_PATH"); val != "" {
		cfg.Storage.InsightsPath = val
	}
	if val := os.Getenv("DEVGUARD_STORAGE_BUSY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Storage.BusyTimeout = d
		}
	}
	if val := os.Getenv("DEVGUARD_STORAGE_MAX_OPEN_CONNS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Storage.MaxOpenConns = i
		}
	}

	// Recorder overrides
	if val := os.Getenv("DEVGUARD_RECORDER_ASYNC_BUFFER"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Recorder.AsyncBuffer = i
		}
	}
	if val := os.Getenv("DEVGUARD_RECORDER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Recorder.WriteTimeout = d
		}
	}

	// Rollup overrides
	if val := os.Getenv("DEVGUARD_ROLLUP_SCHEDULE"); val != "" {
		cfg.Rollup.Schedule = val
	}
	if val := os.Getenv("DEVGUARD_ROLLUP_LOOKBACK"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Rollup.Lookback = d
		}
	}

	// Retention overrides
	if val := os.Getenv("DEVGUARD_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Retention.Days = i
		}
	}
	if val := os.Getenv("DEVGUARD_RETENTION_SCHEDULE"); val != "" {
		cfg.Retention.Schedule = val
	}
	if val := os.Getenv("DEVGUARD_RETENTION_ARCHIVE_BEFORE_DELETE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Retention.ArchiveBeforeDelete = b
		}
	}
	if val := os.Getenv("DEVGUARD_RETENTION_ARCHIVE_PATH"); val != "" {
		cfg.Retention.ArchivePath = val
	}

	// Budget overrides
	if val := os.Getenv("DEVGUARD_BUDGETS_SCHEDULE"); val != "" {
		cfg.Budgets.Schedule = val
	}

	// Insight overrides
	if val := os.Getenv("DEVGUARD_INSIGHTS_SCHEDULE"); val != "" {
		cfg.Insights.Schedule = val
	}
	if val := os.Getenv("DEVGUARD_INSIGHTS_WINDOW_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Insights.WindowDays = i
		}
	}

	// Telemetry overrides
	if val := os.Getenv("DEVGUARD_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("DEVGUARD_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("DEVGUARD_LOGGING_ADD_SOURCE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Logging.AddSource = b
		}
	}
	if val := os.Getenv("DEVGUARD_LOGGING_REDACT_SECRETS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Logging.RedactSecrets = b
		}
	}
	if val := os.Getenv("DEVGUARD_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("DEVGUARD_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
	if val := os.Getenv("DEVGUARD_METRICS_NAMESPACE"); val != "" {
		cfg.Telemetry.Metrics.Namespace = val
	}
	if val := os.Getenv("DEVGUARD_METRICS_SUBSYSTEM"); val != "" {
		cfg.Telemetry.Metrics.Subsystem = val
	}
	if val := os.Getenv("DEVGUARD_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("DEVGUARD_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}
	if val := os.Getenv("DEVGUARD_TRACING_SAMPLER"); val != "" {
		cfg.Telemetry.Tracing.Sampler = val
	}
}
