package config

import (
	"fmt"
	"sync"
)

// The devguard process holds one live configuration. Commands load it
// once at startup; the fsnotify watcher swaps it on file change via
// SetConfig. Library packages take explicit *Config values and never
// read the singleton.
var (
	globalConfig *Config
	configMutex  sync.RWMutex
	initOnce     sync.Once
)

// Initialize loads the configuration at path, applies environment
// overrides, and installs it as the process-wide config. Only the first
// call does anything; later calls return the first call's error state
// as nil and keep the installed config.
func Initialize(path string) error {
	var initErr error

	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		SetConfig(cfg)
	})

	return initErr
}

// GetConfig returns the installed configuration, or nil before a
// successful Initialize. Safe for concurrent use.
func GetConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// SetConfig replaces the installed configuration. The watcher uses this
// as its reload callback; tests use it to inject fixtures.
func SetConfig(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = cfg
}

// ReloadConfig re-reads the file at path and swaps the installed
// configuration. On load or validation failure the previous
// configuration stays in place.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	SetConfig(cfg)
	return nil
}

// MustGetConfig returns the installed configuration and panics if none
// is installed. For code paths that only run after startup succeeded.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
