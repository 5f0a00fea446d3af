// Package config provides configuration management for the DevGuard
// telemetry engine.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with comprehensive validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention DEVGUARD_SECTION_FIELD.
// For example:
//
//   - DEVGUARD_STORAGE_EVENTS_PATH overrides storage.events_path
//   - DEVGUARD_RETENTION_DAYS overrides retention.days
//   - DEVGUARD_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
// For application-wide configuration access, use the singleton pattern:
//
//	if err := config.Initialize("config.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// For testing and library code, prefer passing *Config explicitly.
//
// # Hot Reload
//
// A Watcher reloads the configuration when the file changes on disk.
// Reloads that fail to parse or validate are discarded and the previous
// configuration stays in effect:
//
//	w, err := config.NewWatcher("config.yaml", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go w.Watch(ctx, func(cfg *config.Config) {
//	    config.SetConfig(cfg)
//	})
package config
