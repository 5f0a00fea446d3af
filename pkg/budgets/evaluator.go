package budgets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"devguard-hq/devguard/pkg/metering"
	"devguard-hq/devguard/pkg/telemetry/metrics"
	"devguard-hq/devguard/pkg/telemetry/tracing"
)

// Notifier delivers a fired alert to a channel ("log", "webhook").
// Delivery failures are logged and never roll back the alert record:
// the stored alert is the source of truth, notification is best-effort.
type Notifier interface {
	// Name is the action name budgets reference in their bands.
	Name() string

	// Notify delivers one alert.
	Notify(ctx context.Context, budget *Budget, alert *Alert) error
}

// LogNotifier writes fired alerts to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs fired alerts.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: slog.Default().With("component", "budgets.notify")}
}

// Name implements Notifier.
func (n *LogNotifier) Name() string { return "log" }

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, budget *Budget, alert *Alert) error {
	n.logger.Warn("budget threshold crossed",
		"budget_id", budget.ID,
		"budget_name", budget.Name,
		"project_id", budget.ProjectID,
		"threshold_pct", alert.ThresholdPct,
		"severity", alert.Severity,
		"consumed_usd", alert.ConsumedUSD,
		"consumed_pct", alert.ConsumedPct,
		"allocated_usd", budget.AllocatedUSD,
	)
	return nil
}

// Evaluation reports one evaluation pass over a budget.
type Evaluation struct {
	BudgetID    string  `json:"budget_id"`
	ConsumedUSD float64 `json:"consumed_usd"`
	ConsumedPct float64 `json:"consumed_pct"`

	// Fired contains the alerts this pass created. Bands that were
	// already alerted in this period do not reappear here.
	Fired []*Alert `json:"fired"`
}

// Evaluator computes budget consumption from cost rollups and fires
// band alerts.
//
// Consumption is read from hourly rollups, never from raw events, so
// evaluation keeps working after old events are purged. At-most-once
// alerting is delegated to the store's uniqueness guarantee: when two
// evaluators race on the same band crossing, exactly one insert wins
// and the loser treats the conflict as "already fired".
type Evaluator struct {
	store     Store
	rollups   metering.RollupStore
	notifiers map[string]Notifier
	logger    *slog.Logger
	metrics   *metrics.Collector

	// clock is swappable for tests.
	clock func() time.Time
}

// SetMetrics attaches a metrics collector. A nil collector records nothing.
func (e *Evaluator) SetMetrics(c *metrics.Collector) {
	e.metrics = c
}

// NewEvaluator creates a budget evaluator. The log notifier is always
// registered; additional notifiers are optional.
func NewEvaluator(store Store, rollups metering.RollupStore, notifiers ...Notifier) *Evaluator {
	e := &Evaluator{
		store:     store,
		rollups:   rollups,
		notifiers: make(map[string]Notifier),
		logger:    slog.Default().With("component", "budgets.evaluator"),
		clock:     time.Now,
	}

	logNotifier := NewLogNotifier()
	e.notifiers[logNotifier.Name()] = logNotifier
	for _, n := range notifiers {
		e.notifiers[n.Name()] = n
	}

	return e
}

// CreateBudget validates and persists a new budget.
func (e *Evaluator) CreateBudget(ctx context.Context, budget *Budget) (*Budget, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}

	now := e.clock().UTC()
	budget.ID = uuid.New().String()
	budget.PeriodStart = budget.PeriodStart.UTC()
	budget.PeriodEnd = budget.PeriodEnd.UTC()
	budget.CreatedAt = now
	budget.UpdatedAt = now

	if err := e.store.CreateBudget(ctx, budget); err != nil {
		return nil, err
	}

	e.logger.Info("budget created",
		"budget_id", budget.ID,
		"project_id", budget.ProjectID,
		"allocated_usd", budget.AllocatedUSD,
		"bands", len(budget.Bands),
	)

	return budget, nil
}

// Evaluate runs one evaluation pass over a budget: it computes cumulative
// consumption for the period and fires an alert for every crossed band
// that has not already alerted this period.
func (e *Evaluator) Evaluate(ctx context.Context, budget *Budget) (_ *Evaluation, err error) {
	ctx, span := tracing.Start(ctx, "budgets.evaluate")
	defer func() {
		tracing.SetStatus(span, err)
		span.End()
	}()

	consumed, err := e.Consumption(ctx, budget)
	if err != nil {
		return nil, err
	}

	pct := 0.0
	if budget.AllocatedUSD > 0 {
		pct = consumed / budget.AllocatedUSD * 100
	}

	eval := &Evaluation{
		BudgetID:    budget.ID,
		ConsumedUSD: consumed,
		ConsumedPct: pct,
	}

	// Bands are ascending; every crossed band fires independently so a
	// jump from below the first band past the second fires both.
	for _, band := range budget.Bands {
		if pct < band.ThresholdPct {
			break
		}

		alert := &Alert{
			ID:           uuid.New().String(),
			BudgetID:     budget.ID,
			ProjectID:    budget.ProjectID,
			ThresholdPct: band.ThresholdPct,
			Severity:     band.Severity,
			PeriodStart:  budget.PeriodStart.UTC(),
			ConsumedUSD:  consumed,
			ConsumedPct:  pct,
			State:        AlertOpen,
			FiredAt:      e.clock().UTC(),
		}

		err := e.store.CreateAlert(ctx, alert)
		if err != nil {
			var conflict *metering.ConflictError
			if errors.As(err, &conflict) {
				// Band already alerted this period.
				continue
			}
			return nil, err
		}

		eval.Fired = append(eval.Fired, alert)
		e.metrics.RecordAlertFired(alert.Severity)
		e.notify(ctx, budget, band, alert)
	}

	tracing.SetBudgetAttributes(span, budget.ID, consumed, len(eval.Fired))

	return eval, nil
}

// EvaluateAll evaluates every budget whose period contains the current
// time. One failing budget does not stop the others.
func (e *Evaluator) EvaluateAll(ctx context.Context) ([]*Evaluation, error) {
	allBudgets, err := e.store.ListBudgets(ctx, "")
	if err != nil {
		return nil, err
	}

	started := time.Now()
	defer func() {
		e.metrics.RecordBudgetEvaluation(time.Since(started))
	}()

	now := e.clock().UTC()
	var evals []*Evaluation
	var firstErr error

	for _, budget := range allBudgets {
		if now.Before(budget.PeriodStart) || !now.Before(budget.PeriodEnd) {
			continue
		}

		eval, err := e.Evaluate(ctx, budget)
		if err != nil {
			e.logger.Error("budget evaluation failed",
				"budget_id", budget.ID,
				"project_id", budget.ProjectID,
				"error", err,
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("evaluation of budget %s failed: %w", budget.ID, err)
			}
			continue
		}
		evals = append(evals, eval)
	}

	return evals, firstErr
}

// Consumption returns the cumulative USD cost for the budget's project
// over [period start, min(now, period end)), summed from hourly rollups
// across all streams and dimensions.
func (e *Evaluator) Consumption(ctx context.Context, budget *Budget) (float64, error) {
	end := e.clock().UTC()
	if budget.PeriodEnd.Before(end) {
		end = budget.PeriodEnd.UTC()
	}

	rollups, err := e.rollups.QueryRollups(ctx, &metering.RollupQuery{
		Key:   metering.Key{ProjectID: budget.ProjectID},
		Width: metering.WidthHourly,
		Range: metering.TimeRange{Start: budget.PeriodStart.UTC(), End: end},
	})
	if err != nil {
		return 0, err
	}

	var total float64
	for _, r := range rollups {
		total += r.Measures.Cost.Sum
	}

	return total, nil
}

// AcknowledgeAlert marks an open alert as acknowledged. Acknowledging an
// already-acknowledged alert is an invalid transition.
func (e *Evaluator) AcknowledgeAlert(ctx context.Context, id, actor string) (*Alert, error) {
	alert, err := e.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	if alert.State != AlertOpen {
		return nil, metering.NewInvalidStateError("alert", id, string(alert.State), string(AlertAcknowledged))
	}

	now := e.clock().UTC()
	alert.State = AlertAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = actor

	if err := e.store.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}

	e.logger.Info("alert acknowledged",
		"alert_id", id,
		"budget_id", alert.BudgetID,
		"actor", actor,
	)

	return alert, nil
}

// Listing page bounds. A zero limit gets the default; anything above
// the maximum is clamped rather than rejected.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ListAlerts returns alerts matching the query. The page size is
// bounded: a zero limit becomes DefaultListLimit and limits above
// MaxListLimit are clamped. The caller's query is not modified.
func (e *Evaluator) ListAlerts(ctx context.Context, query *AlertQuery) ([]*Alert, error) {
	q := AlertQuery{}
	if query != nil {
		q = *query
	}
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	if q.Limit > MaxListLimit {
		q.Limit = MaxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return e.store.ListAlerts(ctx, &q)
}

// notify delivers the alert through each of the band's actions. Unknown
// actions and delivery failures are logged and skipped.
func (e *Evaluator) notify(ctx context.Context, budget *Budget, band Band, alert *Alert) {
	actions := band.Actions
	if len(actions) == 0 {
		actions = []string{"log"}
	}

	for _, action := range actions {
		notifier, ok := e.notifiers[action]
		if !ok {
			e.logger.Warn("unknown alert action", "action", action, "budget_id", budget.ID)
			continue
		}
		if err := notifier.Notify(ctx, budget, alert); err != nil {
			e.logger.Error("alert notification failed",
				"action", action,
				"alert_id", alert.ID,
				"error", err,
			)
		}
	}
}
