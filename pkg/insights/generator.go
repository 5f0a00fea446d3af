package insights

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"devguard-hq/devguard/pkg/metering"
	"devguard-hq/devguard/pkg/telemetry/metrics"
	"devguard-hq/devguard/pkg/telemetry/tracing"
)

// GeneratorConfig configures the insight generator.
type GeneratorConfig struct {
	// Window is the observation window rules see. Default: 30 days.
	Window time.Duration
}

// DefaultGeneratorConfig returns the default generator configuration.
func DefaultGeneratorConfig() *GeneratorConfig {
	return &GeneratorConfig{
		Window: 30 * 24 * time.Hour,
	}
}

// Generator builds rule signals from daily rollups and persists the
// findings.
//
// The generator is a thin impure shell around pure rules: it reads
// rollups, assembles one Signal per series, runs every rule, and stores
// triggered outcomes. Deduplication is the store's job; a conflict on an
// already-open finding is a silent no-op, so the generator can run as
// often as the scheduler likes.
type Generator struct {
	store   Store
	rollups metering.RollupStore
	rules   []Rule
	config  *GeneratorConfig
	logger  *slog.Logger
	metrics *metrics.Collector

	// clock is swappable for tests.
	clock func() time.Time
}

// SetMetrics attaches a metrics collector. A nil collector records nothing.
func (g *Generator) SetMetrics(c *metrics.Collector) {
	g.metrics = c
}

// NewGenerator creates an insight generator. A nil rules slice gets the
// built-in rule set.
func NewGenerator(store Store, rollups metering.RollupStore, rules []Rule, config *GeneratorConfig) *Generator {
	if rules == nil {
		rules = DefaultRules()
	}
	if config == nil {
		config = DefaultGeneratorConfig()
	}
	if config.Window <= 0 {
		config.Window = 30 * 24 * time.Hour
	}

	return &Generator{
		store:   store,
		rollups: rollups,
		rules:   rules,
		config:  config,
		logger:  slog.Default().With("component", "insights.generator"),
		clock:   time.Now,
	}
}

// Generate runs every rule over every series with daily rollups in the
// observation window and persists new findings. Returns the insights
// created by this run; findings already open are skipped.
func (g *Generator) Generate(ctx context.Context) (_ []*Insight, err error) {
	ctx, span := tracing.Start(ctx, "insights.generate")
	defer func() {
		tracing.SetStatus(span, err)
		span.End()
	}()

	now := g.clock().UTC()
	window := metering.TimeRange{Start: now.Add(-g.config.Window), End: now}
	previous := metering.TimeRange{Start: window.Start.Add(-g.config.Window), End: window.Start}

	marks, err := g.rollups.Watermarks(ctx, metering.WidthDaily)
	if err != nil {
		return nil, err
	}

	var created []*Insight
	for key := range marks {
		signal, err := g.buildSignal(ctx, key, window, previous)
		if err != nil {
			g.logger.Error("failed to build signal",
				"project_id", key.ProjectID,
				"stream", key.Stream,
				"dimension", key.Dimension,
				"error", err,
			)
			continue
		}

		for _, rule := range g.rules {
			outcome := rule.Evaluate(signal)
			if !outcome.Triggered {
				continue
			}

			insight, err := g.record(ctx, key.ProjectID, outcome)
			if err != nil {
				g.logger.Error("failed to record insight",
					"rule", rule.Name(),
					"project_id", key.ProjectID,
					"error", err,
				)
				continue
			}
			if insight != nil {
				g.metrics.RecordInsight(string(insight.Category), string(insight.Severity))
				tracing.AddEvent(span, "insight_created",
					attribute.String(tracing.AttrInsightCategory, string(insight.Category)),
					attribute.String(tracing.AttrInsightSeverity, string(insight.Severity)),
					attribute.String(tracing.AttrInsightRule, rule.Name()),
				)
				created = append(created, insight)
			}
		}
	}

	if len(created) > 0 {
		g.logger.Info("insight generation completed", "created", len(created))
	} else {
		g.logger.Debug("insight generation completed, nothing new")
	}

	return created, nil
}

// buildSignal assembles the rule input for one series.
func (g *Generator) buildSignal(ctx context.Context, key metering.Key, window, previous metering.TimeRange) (Signal, error) {
	current, err := g.sumWindow(ctx, key, window)
	if err != nil {
		return Signal{}, err
	}
	prior, err := g.sumWindow(ctx, key, previous)
	if err != nil {
		return Signal{}, err
	}

	return Signal{
		Key:      key,
		Window:   window,
		Current:  current,
		Previous: prior,
	}, nil
}

// sumWindow folds a series' daily buckets over a range into one set of
// measures. Sums and counts add; averages are recomputed from them; max
// and min take the extremes across buckets.
func (g *Generator) sumWindow(ctx context.Context, key metering.Key, r metering.TimeRange) (metering.RollupMeasures, error) {
	rollups, err := g.rollups.QueryRollups(ctx, &metering.RollupQuery{
		Key:   key,
		Width: metering.WidthDaily,
		Range: r,
	})
	if err != nil {
		return metering.RollupMeasures{}, err
	}

	var total metering.RollupMeasures
	for _, rollup := range rollups {
		mergeMeasures(&total, rollup.Measures)
	}
	finalizeMeasures(&total)

	return total, nil
}

// record persists one triggered outcome. Returns nil when an open
// insight with the same signal key already exists.
func (g *Generator) record(ctx context.Context, projectID string, outcome Outcome) (*Insight, error) {
	insight := &Insight{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Category:    outcome.Category,
		Severity:    outcome.Severity,
		Title:       outcome.Title,
		Description: outcome.Description,
		SignalKey:   outcome.SignalKey,
		Evidence:    outcome.Evidence,
		State:       StateOpen,
		CreatedAt:   g.clock().UTC(),
	}

	err := g.store.Create(ctx, insight)
	if err != nil {
		var conflict *metering.ConflictError
		if errors.As(err, &conflict) {
			// Finding already open; the run moves on.
			return nil, nil
		}
		return nil, err
	}

	g.logger.Info("insight created",
		"insight_id", insight.ID,
		"project_id", projectID,
		"category", insight.Category,
		"severity", insight.Severity,
		"signal_key", insight.SignalKey,
	)

	return insight, nil
}

// Acknowledge moves an insight from open to acknowledged.
func (g *Generator) Acknowledge(ctx context.Context, id string) (*Insight, error) {
	return g.transition(ctx, id, StateAcknowledged)
}

// Resolve moves an insight to resolved, from either open or
// acknowledged.
func (g *Generator) Resolve(ctx context.Context, id string) (*Insight, error) {
	return g.transition(ctx, id, StateResolved)
}

// transition applies one forward lifecycle move.
func (g *Generator) transition(ctx context.Context, id string, to State) (*Insight, error) {
	insight, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canTransition(insight.State, to) {
		return nil, metering.NewInvalidStateError("insight", id, string(insight.State), string(to))
	}

	now := g.clock().UTC()
	switch to {
	case StateAcknowledged:
		insight.AcknowledgedAt = &now
	case StateResolved:
		insight.ResolvedAt = &now
	}
	insight.State = to

	if err := g.store.Update(ctx, insight); err != nil {
		return nil, err
	}

	g.logger.Info("insight state changed",
		"insight_id", id,
		"state", to,
	)

	return insight, nil
}

// Listing page bounds. A zero limit gets the default; anything above
// the maximum is clamped rather than rejected.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// List returns insights matching the query. The page size is bounded:
// a zero limit becomes DefaultListLimit and limits above MaxListLimit
// are clamped. The caller's query is not modified.
func (g *Generator) List(ctx context.Context, query *Query) ([]*Insight, error) {
	q := Query{}
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
	return g.store.List(ctx, &q)
}

// mergeMeasures folds one bucket into the running total.
func mergeMeasures(total *metering.RollupMeasures, m metering.RollupMeasures) {
	if m.Count == 0 {
		return
	}
	first := total.Count == 0
	total.Count += m.Count
	mergeAggregate(&total.Cost, m.Cost, first)
	mergeAggregate(&total.Latency, m.Latency, first)
	mergeAggregate(&total.Rows, m.Rows, first)
	mergeAggregate(&total.RiskScore, m.RiskScore, first)
}

func mergeAggregate(total *metering.Aggregate, a metering.Aggregate, first bool) {
	total.Sum += a.Sum
	if first || a.Max > total.Max {
		total.Max = a.Max
	}
	if first || a.Min < total.Min {
		total.Min = a.Min
	}
}

// finalizeMeasures recomputes averages from the merged sums.
func finalizeMeasures(total *metering.RollupMeasures) {
	if total.Count == 0 {
		return
	}
	n := float64(total.Count)
	total.Cost.Avg = total.Cost.Sum / n
	total.Latency.Avg = total.Latency.Sum / n
	total.Rows.Avg = total.Rows.Sum / n
	total.RiskScore.Avg = total.RiskScore.Sum / n
}
