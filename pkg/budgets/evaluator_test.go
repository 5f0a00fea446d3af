package budgets_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"devguard-hq/devguard/pkg/budgets"
	budgetstorage "devguard-hq/devguard/pkg/budgets/storage"
	"devguard-hq/devguard/pkg/metering"
	"devguard-hq/devguard/pkg/metering/storage"
)

func newFixture(t *testing.T) (*budgets.Evaluator, *budgetstorage.MemoryStore, *storage.MemoryStore) {
	t.Helper()
	budgetStore := budgetstorage.NewMemoryStore()
	rollupStore := storage.NewMemoryStore()
	return budgets.NewEvaluator(budgetStore, rollupStore), budgetStore, rollupStore
}

// addCost stores an hourly cost rollup n hours in the past.
func addCost(t *testing.T, rollups *storage.MemoryStore, projectID string, hoursAgo int, costUSD float64) {
	t.Helper()
	bucket := metering.WidthHourly.Truncate(time.Now().UTC().Add(-time.Duration(hoursAgo) * time.Hour))
	err := rollups.Replace(context.Background(), []*metering.Rollup{{
		Key:         metering.Key{ProjectID: projectID, Stream: metering.StreamAPICall, Dimension: "endpoint-a"},
		Width:       metering.WidthHourly,
		BucketStart: bucket,
		Measures: metering.RollupMeasures{
			Count: 1,
			Cost:  metering.Aggregate{Sum: costUSD, Avg: costUSD, Max: costUSD, Min: costUSD},
		},
	}})
	if err != nil {
		t.Fatal(err)
	}
}

func monthlyBudget(allocated float64) *budgets.Budget {
	now := time.Now().UTC()
	return &budgets.Budget{
		ProjectID:    "proj-1",
		Name:         "august spend",
		PeriodStart:  now.AddDate(0, 0, -10),
		PeriodEnd:    now.AddDate(0, 0, 20),
		AllocatedUSD: allocated,
		Bands: []budgets.Band{
			{ThresholdPct: 80, Severity: "warning"},
			{ThresholdPct: 95, Severity: "critical"},
		},
	}
}

func TestCreateBudgetValidation(t *testing.T) {
	evaluator, _, _ := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*budgets.Budget)
	}{
		{"missing project", func(b *budgets.Budget) { b.ProjectID = "" }},
		{"zero allocation", func(b *budgets.Budget) { b.AllocatedUSD = 0 }},
		{"negative allocation", func(b *budgets.Budget) { b.AllocatedUSD = -10 }},
		{"inverted period", func(b *budgets.Budget) { b.PeriodEnd = b.PeriodStart.AddDate(0, 0, -1) }},
		{"threshold above 100", func(b *budgets.Budget) { b.Bands[1].ThresholdPct = 150 }},
		{"descending thresholds", func(b *budgets.Budget) { b.Bands[1].ThresholdPct = 50 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := monthlyBudget(100)
			tt.mutate(b)
			_, err := evaluator.CreateBudget(ctx, b)
			var vErr *metering.ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}

	created, err := evaluator.CreateBudget(ctx, monthlyBudget(100))
	if err != nil {
		t.Fatalf("valid budget rejected: %v", err)
	}
	if created.ID == "" {
		t.Error("expected a generated budget ID")
	}
}

func TestEvaluateFiresBandOnce(t *testing.T) {
	evaluator, _, rollups := newFixture(t)
	ctx := context.Background()

	budget, err := evaluator.CreateBudget(ctx, monthlyBudget(100))
	if err != nil {
		t.Fatal(err)
	}

	// 70% consumed: below every band.
	addCost(t, rollups, "proj-1", 5, 70)
	eval, err := evaluator.Evaluate(ctx, budget)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if eval.ConsumedUSD != 70 || len(eval.Fired) != 0 {
		t.Fatalf("eval = consumed %.2f, fired %d; want 70.00, 0", eval.ConsumedUSD, len(eval.Fired))
	}

	// Consumption moves to 82%: the 80% band fires exactly once.
	addCost(t, rollups, "proj-1", 4, 12)
	eval, err = evaluator.Evaluate(ctx, budget)
	if err != nil {
		t.Fatal(err)
	}
	if len(eval.Fired) != 1 {
		t.Fatalf("fired %d alerts, want exactly 1", len(eval.Fired))
	}
	alert := eval.Fired[0]
	if alert.ThresholdPct != 80 || alert.Severity != "warning" {
		t.Errorf("fired band = %.0f%%/%s, want 80%%/warning", alert.ThresholdPct, alert.Severity)
	}
	if alert.ConsumedUSD != 82 {
		t.Errorf("snapshot consumed = %.2f, want 82.00", alert.ConsumedUSD)
	}
	if alert.State != budgets.AlertOpen {
		t.Errorf("alert state = %q, want open", alert.State)
	}

	// A second pass with unchanged consumption fires nothing.
	eval, err = evaluator.Evaluate(ctx, budget)
	if err != nil {
		t.Fatal(err)
	}
	if len(eval.Fired) != 0 {
		t.Errorf("re-evaluation fired %d alerts, want 0", len(eval.Fired))
	}

	stored, err := evaluator.ListAlerts(ctx, &budgets.AlertQuery{BudgetID: budget.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Errorf("stored %d alerts, want 1", len(stored))
	}
}

func TestEvaluateJumpFiresAllCrossedBands(t *testing.T) {
	evaluator, _, rollups := newFixture(t)
	ctx := context.Background()

	budget, err := evaluator.CreateBudget(ctx, monthlyBudget(100))
	if err != nil {
		t.Fatal(err)
	}

	// One jump from zero past both bands.
	addCost(t, rollups, "proj-1", 3, 97)
	eval, err := evaluator.Evaluate(ctx, budget)
	if err != nil {
		t.Fatal(err)
	}
	if len(eval.Fired) != 2 {
		t.Fatalf("fired %d alerts, want both bands", len(eval.Fired))
	}
	if eval.Fired[0].ThresholdPct != 80 || eval.Fired[1].ThresholdPct != 95 {
		t.Errorf("fired thresholds = %.0f, %.0f; want 80, 95", eval.Fired[0].ThresholdPct, eval.Fired[1].ThresholdPct)
	}
}

func TestEvaluateEscalation(t *testing.T) {
	evaluator, _, rollups := newFixture(t)
	ctx := context.Background()

	budget, err := evaluator.CreateBudget(ctx, monthlyBudget(100))
	if err != nil {
		t.Fatal(err)
	}

	addCost(t, rollups, "proj-1", 6, 82)
	if _, err := evaluator.Evaluate(ctx, budget); err != nil {
		t.Fatal(err)
	}

	// Later the 95% band is crossed too; only the new band fires.
	addCost(t, rollups, "proj-1", 2, 14)
	eval, err := evaluator.Evaluate(ctx, budget)
	if err != nil {
		t.Fatal(err)
	}
	if len(eval.Fired) != 1 || eval.Fired[0].ThresholdPct != 95 {
		t.Fatalf("escalation fired %d alerts, want only the 95%% band", len(eval.Fired))
	}
}

func TestConsumptionScopedToProjectAndPeriod(t *testing.T) {
	evaluator, _, rollups := newFixture(t)
	ctx := context.Background()

	budget, err := evaluator.CreateBudget(ctx, monthlyBudget(100))
	if err != nil {
		t.Fatal(err)
	}

	addCost(t, rollups, "proj-1", 5, 40)
	addCost(t, rollups, "other-project", 5, 500)

	// Cost from before the period must not count.
	old := metering.WidthHourly.Truncate(budget.PeriodStart.Add(-48 * time.Hour))
	err = rollups.Replace(ctx, []*metering.Rollup{{
		Key:         metering.Key{ProjectID: "proj-1", Stream: metering.StreamAPICall, Dimension: "endpoint-a"},
		Width:       metering.WidthHourly,
		BucketStart: old,
		Measures:    metering.RollupMeasures{Count: 1, Cost: metering.Aggregate{Sum: 999}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	consumed, err := evaluator.Consumption(ctx, budget)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != 40 {
		t.Errorf("consumption = %.2f, want 40.00", consumed)
	}
}

func TestEvaluateAllSkipsInactivePeriods(t *testing.T) {
	evaluator, _, rollups := newFixture(t)
	ctx := context.Background()

	active, err := evaluator.CreateBudget(ctx, monthlyBudget(100))
	if err != nil {
		t.Fatal(err)
	}

	expired := monthlyBudget(100)
	expired.PeriodStart = time.Now().UTC().AddDate(0, -2, 0)
	expired.PeriodEnd = time.Now().UTC().AddDate(0, -1, 0)
	if _, err := evaluator.CreateBudget(ctx, expired); err != nil {
		t.Fatal(err)
	}

	upcoming := monthlyBudget(100)
	upcoming.PeriodStart = time.Now().UTC().AddDate(0, 1, 0)
	upcoming.PeriodEnd = time.Now().UTC().AddDate(0, 2, 0)
	if _, err := evaluator.CreateBudget(ctx, upcoming); err != nil {
		t.Fatal(err)
	}

	addCost(t, rollups, "proj-1", 5, 10)

	evals, err := evaluator.EvaluateAll(ctx)
	if err != nil {
		t.Fatalf("evaluate all failed: %v", err)
	}
	if len(evals) != 1 {
		t.Fatalf("evaluated %d budgets, want only the active one", len(evals))
	}
	if evals[0].BudgetID != active.ID {
		t.Errorf("evaluated budget %s, want %s", evals[0].BudgetID, active.ID)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	evaluator, _, rollups := newFixture(t)
	ctx := context.Background()

	budget, err := evaluator.CreateBudget(ctx, monthlyBudget(100))
	if err != nil {
		t.Fatal(err)
	}
	addCost(t, rollups, "proj-1", 3, 85)
	eval, err := evaluator.Evaluate(ctx, budget)
	if err != nil {
		t.Fatal(err)
	}
	if len(eval.Fired) != 1 {
		t.Fatal("expected one fired alert")
	}
	id := eval.Fired[0].ID

	acked, err := evaluator.AcknowledgeAlert(ctx, id, "kim")
	if err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if acked.State != budgets.AlertAcknowledged || acked.AcknowledgedBy != "kim" || acked.AcknowledgedAt == nil {
		t.Errorf("acknowledged alert = %+v", acked)
	}

	// Acknowledging twice is an invalid transition.
	_, err = evaluator.AcknowledgeAlert(ctx, id, "kim")
	var stateErr *metering.InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Errorf("expected InvalidStateError, got %v", err)
	}

	_, err = evaluator.AcknowledgeAlert(ctx, "no-such-alert", "kim")
	var nfErr *metering.NotFoundError
	if !errors.As(err, &nfErr) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	evaluator, _, _ := newFixture(t)

	bad := budgets.NewScheduler(evaluator, "not a cron")
	if err := bad.Start(context.Background()); err == nil {
		t.Error("expected error for invalid schedule")
	}

	s := budgets.NewScheduler(evaluator, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !s.IsRunning() {
		t.Error("scheduler must report running after start")
	}
	s.Stop()
	if s.IsRunning() {
		t.Error("scheduler must not report running after stop")
	}
}

// alertQueryRecorder captures the query the evaluator hands to storage.
type alertQueryRecorder struct {
	budgets.Store
	got *budgets.AlertQuery
}

func (s *alertQueryRecorder) ListAlerts(ctx context.Context, q *budgets.AlertQuery) ([]*budgets.Alert, error) {
	s.got = q
	return nil, nil
}

func TestListAlertsBoundsPageSize(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		offset     int
		wantLimit  int
		wantOffset int
	}{
		{"zero limit gets default", 0, 0, budgets.DefaultListLimit, 0},
		{"explicit limit preserved", 25, 10, 25, 10},
		{"oversized limit clamped", budgets.MaxListLimit + 1, 0, budgets.MaxListLimit, 0},
		{"negative limit gets default", -1, 0, budgets.DefaultListLimit, 0},
		{"negative offset reset", 25, -5, 25, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &alertQueryRecorder{}
			evaluator := budgets.NewEvaluator(store, nil)

			in := &budgets.AlertQuery{Limit: tt.limit, Offset: tt.offset}
			if _, err := evaluator.ListAlerts(context.Background(), in); err != nil {
				t.Fatalf("list failed: %v", err)
			}

			if store.got.Limit != tt.wantLimit || store.got.Offset != tt.wantOffset {
				t.Errorf("store saw limit=%d offset=%d, want limit=%d offset=%d",
					store.got.Limit, store.got.Offset, tt.wantLimit, tt.wantOffset)
			}
			if in.Limit != tt.limit || in.Offset != tt.offset {
				t.Errorf("caller's query was modified: %+v", in)
			}
		})
	}
}
