package cli

import (
	"errors"
	"fmt"
	"testing"

	"devguard-hq/devguard/pkg/metering"
)

func TestConfigErrorMessage(t *testing.T) {
	err := NewConfigError("storage.events_path", "missing required field")
	want := "config error in storage.events_path: missing required field"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = NewConfigError("", "failed to load config: no such file")
	want = "config error: failed to load config: no such file"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCommandErrorWrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := NewCommandError("events export", cause)

	want := "command events export failed: disk full"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() should reach the wrapped cause")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"generic", errors.New("boom"), ExitFailure},
		{"config error", NewConfigError("retention.days", "must be >= 0"), ExitConfig},
		{
			"wrapped config error",
			NewCommandError("run", NewConfigError("", "bad yaml")),
			ExitConfig,
		},
		{
			"validation error",
			NewCommandError("events query", &metering.ValidationError{Field: "limit", Reason: "too large"}),
			ExitConfig,
		},
		{
			"not found",
			NewCommandError("alerts ack", &metering.NotFoundError{Kind: "alert", ID: "a-1"}),
			ExitNotFound,
		},
		{
			"deeply wrapped not found",
			fmt.Errorf("outer: %w", &metering.NotFoundError{Kind: "insight", ID: "i-1"}),
			ExitNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
