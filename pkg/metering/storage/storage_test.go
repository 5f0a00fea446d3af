package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"devguard-hq/devguard/pkg/metering"
)

// store is the combined surface both backends expose.
type store interface {
	metering.EventStore
	metering.RollupStore
}

// forEachStore runs the test against the memory and SQLite backends.
func forEachStore(t *testing.T, fn func(t *testing.T, s store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		s := NewMemoryStore()
		defer s.Close()
		fn(t, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(&SQLiteConfig{
			Path: filepath.Join(t.TempDir(), "events.db"),
		})
		if err != nil {
			t.Fatalf("failed to open sqlite store: %v", err)
		}
		defer s.Close()
		fn(t, s)
	})
}

func newEvent(id, project string, ts time.Time, cost float64) *metering.Event {
	return &metering.Event{
		ID:          id,
		ProjectID:   project,
		Stream:      metering.StreamAPICall,
		Dimension:   "endpoint-a",
		Timestamp:   ts,
		RecordedAt:  ts,
		Environment: "production",
		Measures:    metering.Measures{CostUSD: cost, LatencyMS: 100},
	}
}

func TestAppendAndQueryOrdering(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

		// Append out of order; queries must come back ordered by
		// (timestamp, id).
		if err := s.Append(ctx, newEvent("e3", "p1", base.Add(2*time.Minute), 1.25)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
		if err := s.Append(ctx, newEvent("e1", "p1", base, 0.50)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
		if err := s.Append(ctx, newEvent("e2", "p1", base.Add(time.Minute), 0.75)); err != nil {
			t.Fatalf("append failed: %v", err)
		}

		events, err := s.Query(ctx, &metering.EventQuery{ProjectID: "p1"})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("got %d events, want 3", len(events))
		}
		for i, wantID := range []string{"e1", "e2", "e3"} {
			if events[i].ID != wantID {
				t.Errorf("events[%d].ID = %q, want %q", i, events[i].ID, wantID)
			}
		}
	})
}

func TestQueryTimestampTiebreak(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		ts := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

		if err := s.Append(ctx, newEvent("b", "p1", ts, 1)); err != nil {
			t.Fatal(err)
		}
		if err := s.Append(ctx, newEvent("a", "p1", ts, 1)); err != nil {
			t.Fatal(err)
		}

		events, err := s.Query(ctx, &metering.EventQuery{})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(events) != 2 || events[0].ID != "a" || events[1].ID != "b" {
			t.Errorf("equal timestamps must order by id, got %v", []string{events[0].ID, events[1].ID})
		}
	})
}

func TestQueryFiltersAndPagination(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		base := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

		for i := 0; i < 10; i++ {
			ev := newEvent(fmt.Sprintf("e%02d", i), "p1", base.Add(time.Duration(i)*time.Hour), 1)
			if i%2 == 1 {
				ev.Stream = metering.StreamDBQuery
				ev.Dimension = "primary"
			}
			if err := s.Append(ctx, ev); err != nil {
				t.Fatal(err)
			}
		}

		byStream, err := s.Query(ctx, &metering.EventQuery{Stream: metering.StreamDBQuery})
		if err != nil {
			t.Fatal(err)
		}
		if len(byStream) != 5 {
			t.Errorf("stream filter returned %d events, want 5", len(byStream))
		}

		start := base.Add(3 * time.Hour)
		end := base.Add(7 * time.Hour)
		ranged, err := s.Query(ctx, &metering.EventQuery{Start: &start, End: &end})
		if err != nil {
			t.Fatal(err)
		}
		// Half-open range: hours 3,4,5,6.
		if len(ranged) != 4 {
			t.Errorf("range query returned %d events, want 4", len(ranged))
		}

		page, err := s.Query(ctx, &metering.EventQuery{Limit: 3, Offset: 8})
		if err != nil {
			t.Fatal(err)
		}
		if len(page) != 2 {
			t.Errorf("pagination returned %d events, want 2", len(page))
		}

		count, err := s.Count(ctx, &metering.EventQuery{ProjectID: "p1"})
		if err != nil {
			t.Fatal(err)
		}
		if count != 10 {
			t.Errorf("count = %d, want 10", count)
		}
	})
}

func TestKeysInRange(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		base := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

		if err := s.Append(ctx, newEvent("e1", "p1", base, 1)); err != nil {
			t.Fatal(err)
		}
		ev := newEvent("e2", "p2", base.Add(48*time.Hour), 1)
		ev.Stream = metering.StreamDepScan
		ev.Dimension = "npm"
		if err := s.Append(ctx, ev); err != nil {
			t.Fatal(err)
		}

		all, err := s.Keys(ctx, metering.TimeRange{})
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 {
			t.Fatalf("got %d keys, want 2", len(all))
		}
		if all[0].ProjectID != "p1" {
			t.Errorf("keys must be sorted, got first key %+v", all[0])
		}

		firstDay, err := s.Keys(ctx, metering.TimeRange{Start: base, End: base.Add(24 * time.Hour)})
		if err != nil {
			t.Fatal(err)
		}
		if len(firstDay) != 1 || firstDay[0].ProjectID != "p1" {
			t.Errorf("range-filtered keys = %+v, want only p1", firstDay)
		}
	})
}

func TestDeleteBeforeAdvancesHorizon(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

		if err := s.Append(ctx, newEvent("old", "p1", base, 1)); err != nil {
			t.Fatal(err)
		}
		if err := s.Append(ctx, newEvent("new", "p1", base.Add(72*time.Hour), 1)); err != nil {
			t.Fatal(err)
		}

		cutoff := base.Add(24 * time.Hour)
		deleted, err := s.DeleteBefore(ctx, cutoff)
		if err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if deleted != 1 {
			t.Errorf("deleted = %d, want 1", deleted)
		}

		remaining, err := s.Count(ctx, &metering.EventQuery{})
		if err != nil {
			t.Fatal(err)
		}
		if remaining != 1 {
			t.Errorf("remaining = %d, want 1", remaining)
		}

		horizon, err := s.PurgeHorizon(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !horizon.Equal(cutoff) {
			t.Errorf("horizon = %v, want %v", horizon, cutoff)
		}

		// A lower cutoff must not move the horizon backwards.
		if _, err := s.DeleteBefore(ctx, base); err != nil {
			t.Fatal(err)
		}
		horizon, err = s.PurgeHorizon(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !horizon.Equal(cutoff) {
			t.Errorf("horizon moved backwards to %v", horizon)
		}
	})
}

func TestReplaceOverwritesBucket(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		key := metering.Key{ProjectID: "p1", Stream: metering.StreamAPICall, Dimension: "endpoint-a"}
		bucket := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

		first := &metering.Rollup{
			Key: key, Width: metering.WidthHourly, BucketStart: bucket,
			Measures:   metering.RollupMeasures{Count: 2, Cost: metering.Aggregate{Sum: 1.0, Avg: 0.5, Max: 0.6, Min: 0.4}},
			ComputedAt: bucket.Add(time.Hour),
		}
		if err := s.Replace(ctx, []*metering.Rollup{first}); err != nil {
			t.Fatalf("replace failed: %v", err)
		}

		second := &metering.Rollup{
			Key: key, Width: metering.WidthHourly, BucketStart: bucket,
			Measures:   metering.RollupMeasures{Count: 3, Cost: metering.Aggregate{Sum: 2.5, Avg: 2.5 / 3, Max: 1.25, Min: 0.5}},
			ComputedAt: bucket.Add(2 * time.Hour),
		}
		if err := s.Replace(ctx, []*metering.Rollup{second}); err != nil {
			t.Fatalf("replace failed: %v", err)
		}

		got, err := s.QueryRollups(ctx, &metering.RollupQuery{Key: key, Width: metering.WidthHourly})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("got %d buckets, want 1 (replace must overwrite, not merge)", len(got))
		}
		if got[0].Measures.Count != 3 || got[0].Measures.Cost.Sum != 2.5 {
			t.Errorf("bucket = %+v, want the second write's measures", got[0].Measures)
		}
	})
}

func TestQueryRollupsFiltering(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		key := metering.Key{ProjectID: "p1", Stream: metering.StreamAPICall, Dimension: "endpoint-a"}
		base := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

		var rollups []*metering.Rollup
		for i := 0; i < 4; i++ {
			rollups = append(rollups, &metering.Rollup{
				Key: key, Width: metering.WidthHourly, BucketStart: base.Add(time.Duration(i) * time.Hour),
				Measures: metering.RollupMeasures{Count: 1},
			})
		}
		rollups = append(rollups, &metering.Rollup{
			Key: key, Width: metering.WidthDaily, BucketStart: base,
			Measures: metering.RollupMeasures{Count: 4},
		})
		if err := s.Replace(ctx, rollups); err != nil {
			t.Fatal(err)
		}

		hourly, err := s.QueryRollups(ctx, &metering.RollupQuery{
			Key:   key,
			Width: metering.WidthHourly,
			Range: metering.TimeRange{Start: base.Add(time.Hour), End: base.Add(3 * time.Hour)},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(hourly) != 2 {
			t.Errorf("ranged hourly query returned %d buckets, want 2", len(hourly))
		}

		daily, err := s.QueryRollups(ctx, &metering.RollupQuery{Key: key, Width: metering.WidthDaily})
		if err != nil {
			t.Fatal(err)
		}
		if len(daily) != 1 {
			t.Errorf("daily query returned %d buckets, want 1", len(daily))
		}
	})
}

func TestWatermarkMonotonic(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		key := metering.Key{ProjectID: "p1", Stream: metering.StreamAPICall, Dimension: "endpoint-a"}

		mark, err := s.Watermark(ctx, key, metering.WidthDaily)
		if err != nil {
			t.Fatal(err)
		}
		if !mark.IsZero() {
			t.Errorf("fresh watermark = %v, want zero", mark)
		}

		first := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
		if err := s.SetWatermark(ctx, key, metering.WidthDaily, first); err != nil {
			t.Fatal(err)
		}

		// Attempting to move backwards is a no-op.
		if err := s.SetWatermark(ctx, key, metering.WidthDaily, first.Add(-24*time.Hour)); err != nil {
			t.Fatal(err)
		}

		mark, err = s.Watermark(ctx, key, metering.WidthDaily)
		if err != nil {
			t.Fatal(err)
		}
		if !mark.Equal(first) {
			t.Errorf("watermark = %v, want %v", mark, first)
		}

		marks, err := s.Watermarks(ctx, metering.WidthDaily)
		if err != nil {
			t.Fatal(err)
		}
		if len(marks) != 1 || !marks[key].Equal(first) {
			t.Errorf("watermarks = %v", marks)
		}

		hourly, err := s.Watermarks(ctx, metering.WidthHourly)
		if err != nil {
			t.Fatal(err)
		}
		if len(hourly) != 0 {
			t.Errorf("hourly watermarks = %v, want none", hourly)
		}
	})
}

func TestEventPayloadRoundtrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		ev := newEvent("e1", "p1", time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC), 0.5)
		ev.Payload = map[string]any{"tokens": float64(1234), "model": "gpt-x"}

		if err := s.Append(ctx, ev); err != nil {
			t.Fatal(err)
		}

		events, err := s.Query(ctx, &metering.EventQuery{})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1", len(events))
		}
		if events[0].Payload["model"] != "gpt-x" || events[0].Payload["tokens"] != float64(1234) {
			t.Errorf("payload = %v", events[0].Payload)
		}
	})
}

func TestSQLitePing(t *testing.T) {
	s, err := NewSQLiteStore(&SQLiteConfig{Path: filepath.Join(t.TempDir(), "events.db")})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping on open store failed: %v", err)
	}
	s.Close()
}
