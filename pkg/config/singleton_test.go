package config

import "testing"

func TestSetAndGetConfig(t *testing.T) {
	original := GetConfig()
	defer SetConfig(original)

	cfg := DefaultConfig()
	cfg.Storage.EventsPath = "/singleton/events.db"
	SetConfig(cfg)

	got := GetConfig()
	if got == nil {
		t.Fatal("GetConfig() returned nil after SetConfig")
	}
	if got.Storage.EventsPath != "/singleton/events.db" {
		t.Errorf("EventsPath = %q", got.Storage.EventsPath)
	}
}

func TestMustGetConfigPanicsWhenUninitialized(t *testing.T) {
	original := GetConfig()
	defer SetConfig(original)

	SetConfig(nil)

	defer func() {
		if recover() == nil {
			t.Error("MustGetConfig() did not panic on nil config")
		}
	}()
	MustGetConfig()
}
