package config

import (
	"os"
	"path/filepath"
	"testing"
)

func BenchmarkLoadConfig(b *testing.B) {
	path := filepath.Join(b.TempDir(), "config.yaml")
	data := []byte(`
storage:
  events_path: /tmp/devguard/events.db
retention:
  days: 30
telemetry:
  logging:
    level: info
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		b.Fatalf("write config: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := LoadConfig(path); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkValidate(b *testing.B) {
	cfg := DefaultConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := Validate(cfg); err != nil {
			b.Fatal(err)
		}
	}
}
