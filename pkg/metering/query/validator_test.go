package query

import (
	"errors"
	"testing"
	"time"

	"devguard-hq/devguard/pkg/metering"
)

func TestValidate(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	tests := []struct {
		name      string
		query     *metering.EventQuery
		wantField string
	}{
		{
			name:  "empty query",
			query: &metering.EventQuery{},
		},
		{
			name:  "valid full query",
			query: &metering.EventQuery{ProjectID: "p1", Stream: metering.StreamAPICall, Start: &start, End: &end, Limit: 50},
		},
		{
			name:      "negative limit",
			query:     &metering.EventQuery{Limit: -1},
			wantField: "limit",
		},
		{
			name:      "limit above max",
			query:     &metering.EventQuery{Limit: MaxLimit + 1},
			wantField: "limit",
		},
		{
			name:      "negative offset",
			query:     &metering.EventQuery{Offset: -5},
			wantField: "offset",
		},
		{
			name:      "unknown stream",
			query:     &metering.EventQuery{Stream: metering.Stream("webhook")},
			wantField: "stream",
		},
		{
			name:      "inverted range",
			query:     &metering.EventQuery{Start: &end, End: &start},
			wantField: "range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var vErr *metering.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", vErr.Field, tt.wantField)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	q := &metering.EventQuery{}
	ApplyDefaults(q)
	if q.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want %d", q.Limit, DefaultLimit)
	}

	q = &metering.EventQuery{Limit: 25}
	ApplyDefaults(q)
	if q.Limit != 25 {
		t.Errorf("explicit limit overwritten: %d", q.Limit)
	}
}

func TestValidateRollup(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		query     *metering.RollupQuery
		wantField string
	}{
		{
			name:  "valid",
			query: &metering.RollupQuery{Width: metering.WidthDaily, Range: metering.TimeRange{Start: start, End: start.Add(time.Hour)}},
		},
		{
			name:      "invalid width",
			query:     &metering.RollupQuery{Width: metering.Width("weekly")},
			wantField: "width",
		},
		{
			name:      "unknown stream",
			query:     &metering.RollupQuery{Width: metering.WidthHourly, Key: metering.Key{Stream: "webhook"}},
			wantField: "stream",
		},
		{
			name:      "half-set range",
			query:     &metering.RollupQuery{Width: metering.WidthHourly, Range: metering.TimeRange{Start: start}},
			wantField: "range",
		},
		{
			name:      "end not after start",
			query:     &metering.RollupQuery{Width: metering.WidthHourly, Range: metering.TimeRange{Start: start, End: start}},
			wantField: "range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRollup(tt.query)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var vErr *metering.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", vErr.Field, tt.wantField)
			}
		})
	}
}
