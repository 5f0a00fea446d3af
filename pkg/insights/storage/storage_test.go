package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"devguard-hq/devguard/pkg/insights"
	"devguard-hq/devguard/pkg/metering"
)

// forEachStore runs the test against the memory and SQLite backends.
func forEachStore(t *testing.T, fn func(t *testing.T, s insights.Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		s := NewMemoryStore()
		defer s.Close()
		fn(t, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "insights.db"))
		if err != nil {
			t.Fatalf("failed to open sqlite store: %v", err)
		}
		defer s.Close()
		fn(t, s)
	})
}

func sampleInsight(id string, state insights.State) *insights.Insight {
	return &insights.Insight{
		ID:          id,
		ProjectID:   "proj-1",
		Category:    insights.CategoryCost,
		Severity:    insights.SeverityWarning,
		Title:       "API spend spike on provider-x",
		Description: "Spend doubled over the previous window.",
		SignalKey:   "cost_spike/provider-x",
		Evidence:    map[string]any{"current_usd": 200.0, "previous_usd": 100.0},
		State:       state,
		CreatedAt:   time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s insights.Store) {
		ctx := context.Background()
		if err := s.Create(ctx, sampleInsight("i1", insights.StateOpen)); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		got, err := s.Get(ctx, "i1")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.Title != "API spend spike on provider-x" || got.State != insights.StateOpen {
			t.Errorf("got %+v", got)
		}
		if got.Evidence["current_usd"] != 200.0 {
			t.Errorf("evidence did not survive persistence: %v", got.Evidence)
		}

		var nfErr *metering.NotFoundError
		if _, err := s.Get(ctx, "missing"); !errors.As(err, &nfErr) {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	})
}

func TestOpenInsightDeduplication(t *testing.T) {
	forEachStore(t, func(t *testing.T, s insights.Store) {
		ctx := context.Background()
		if err := s.Create(ctx, sampleInsight("i1", insights.StateOpen)); err != nil {
			t.Fatal(err)
		}

		// A second open insight with the same dedupe key conflicts.
		err := s.Create(ctx, sampleInsight("i2", insights.StateOpen))
		var cErr *metering.ConflictError
		if !errors.As(err, &cErr) {
			t.Fatalf("expected ConflictError, got %v", err)
		}

		// A different signal key opens independently.
		other := sampleInsight("i3", insights.StateOpen)
		other.SignalKey = "cost_spike/provider-y"
		if err := s.Create(ctx, other); err != nil {
			t.Fatalf("different signal key rejected: %v", err)
		}

		// A different project opens independently.
		elsewhere := sampleInsight("i4", insights.StateOpen)
		elsewhere.ProjectID = "proj-2"
		if err := s.Create(ctx, elsewhere); err != nil {
			t.Fatalf("different project rejected: %v", err)
		}
	})
}

func TestResolvedInsightReleasesDedupeSlot(t *testing.T) {
	forEachStore(t, func(t *testing.T, s insights.Store) {
		ctx := context.Background()
		first := sampleInsight("i1", insights.StateOpen)
		if err := s.Create(ctx, first); err != nil {
			t.Fatal(err)
		}

		now := time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC)
		first.State = insights.StateResolved
		first.ResolvedAt = &now
		if err := s.Update(ctx, first); err != nil {
			t.Fatalf("update failed: %v", err)
		}

		// The recurring condition can open a fresh insight.
		if err := s.Create(ctx, sampleInsight("i2", insights.StateOpen)); err != nil {
			t.Fatalf("create after resolve failed: %v", err)
		}
	})
}

func TestListFiltersAndOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, s insights.Store) {
		ctx := context.Background()

		older := sampleInsight("i-old", insights.StateOpen)
		older.CreatedAt = older.CreatedAt.Add(-24 * time.Hour)
		if err := s.Create(ctx, older); err != nil {
			t.Fatal(err)
		}

		newer := sampleInsight("i-new", insights.StateOpen)
		newer.SignalKey = "cost_spike/provider-y"
		if err := s.Create(ctx, newer); err != nil {
			t.Fatal(err)
		}

		security := sampleInsight("i-sec", insights.StateOpen)
		security.Category = insights.CategorySecurity
		security.Severity = insights.SeverityCritical
		security.SignalKey = "dependency_risk/npm"
		if err := s.Create(ctx, security); err != nil {
			t.Fatal(err)
		}

		all, err := s.List(ctx, &insights.Query{})
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 {
			t.Fatalf("listed %d insights, want 3", len(all))
		}
		if all[len(all)-1].ID != "i-old" {
			t.Errorf("expected newest-first ordering, got last = %s", all[len(all)-1].ID)
		}

		costOnly, err := s.List(ctx, &insights.Query{Category: insights.CategoryCost})
		if err != nil {
			t.Fatal(err)
		}
		if len(costOnly) != 2 {
			t.Errorf("cost filter returned %d, want 2", len(costOnly))
		}

		critical, err := s.List(ctx, &insights.Query{Severity: insights.SeverityCritical})
		if err != nil {
			t.Fatal(err)
		}
		if len(critical) != 1 || critical[0].ID != "i-sec" {
			t.Errorf("severity filter = %+v", critical)
		}

		page, err := s.List(ctx, &insights.Query{Limit: 2, Offset: 2})
		if err != nil {
			t.Fatal(err)
		}
		if len(page) != 1 {
			t.Errorf("pagination returned %d, want 1", len(page))
		}
	})
}

func TestUpdateMissingInsight(t *testing.T) {
	forEachStore(t, func(t *testing.T, s insights.Store) {
		err := s.Update(context.Background(), sampleInsight("missing", insights.StateResolved))
		var nfErr *metering.NotFoundError
		if !errors.As(err, &nfErr) {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	})
}
