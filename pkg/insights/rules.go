package insights

import (
	"fmt"

	"devguard-hq/devguard/pkg/metering"
)

// Rule evaluates one signal and returns an outcome. Rules are pure
// functions of their input: no clocks, no storage, no randomness. The
// same signal always produces the same outcome, which makes every
// finding replayable from rollup history.
type Rule interface {
	// Name identifies the rule in logs.
	Name() string

	// Evaluate inspects one signal.
	Evaluate(signal Signal) Outcome
}

const (
	// costSpikeFloorUSD is the minimum spend in the window before the
	// cost rule considers firing at all.
	costSpikeFloorUSD = 100.0

	// costSpikeRatio is the growth over the previous window that counts
	// as a spike, and costCriticalRatio the growth that escalates it.
	costSpikeRatio    = 1.5
	costCriticalRatio = 3.0

	// slowQueryBaselineMS is the latency baseline for query telemetry.
	slowQueryBaselineMS = 100.0

	// slowQueryWarnFactor and slowQueryCriticalFactor are the multiples
	// of the baseline at which the query rule fires.
	slowQueryWarnFactor     = 2.0
	slowQueryCriticalFactor = 10.0

	// riskWarnScore and riskCriticalScore are dependency risk score
	// thresholds on a 0-10 scale.
	riskWarnScore     = 4.0
	riskCriticalScore = 7.0
)

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		&CostSpikeRule{},
		&SlowQueryRule{},
		&DependencyRiskRule{},
	}
}

// CostSpikeRule fires when API spend in the current window both exceeds
// a floor and grows sharply over the previous window. The floor keeps
// tiny projects from alerting on noise.
type CostSpikeRule struct{}

// Name implements Rule.
func (r *CostSpikeRule) Name() string { return "cost_spike" }

// Evaluate implements Rule.
func (r *CostSpikeRule) Evaluate(signal Signal) Outcome {
	if signal.Key.Stream != metering.StreamAPICall {
		return Outcome{}
	}

	current := signal.Current.Cost.Sum
	previous := signal.Previous.Cost.Sum

	if current < costSpikeFloorUSD {
		return Outcome{}
	}
	if previous > 0 && current < previous*costSpikeRatio {
		return Outcome{}
	}

	severity := SeverityWarning
	if previous > 0 && current >= previous*costCriticalRatio {
		severity = SeverityCritical
	}

	growth := 0.0
	if previous > 0 {
		growth = (current - previous) / previous * 100
	}

	return Outcome{
		Triggered: true,
		Category:  CategoryCost,
		Severity:  severity,
		Title:     fmt.Sprintf("API spend spike on %s", signal.Key.Dimension),
		Description: fmt.Sprintf(
			"Spend on provider %q reached $%.2f this window, up from $%.2f in the previous window.",
			signal.Key.Dimension, current, previous),
		SignalKey: "cost_spike/" + signal.Key.Dimension,
		Evidence: map[string]any{
			"current_usd":  current,
			"previous_usd": previous,
			"growth_pct":   growth,
			"call_count":   signal.Current.Count,
		},
	}
}

// SlowQueryRule fires when average query latency on a connection is a
// large multiple of the baseline.
type SlowQueryRule struct{}

// Name implements Rule.
func (r *SlowQueryRule) Name() string { return "slow_query" }

// Evaluate implements Rule.
func (r *SlowQueryRule) Evaluate(signal Signal) Outcome {
	if signal.Key.Stream != metering.StreamDBQuery {
		return Outcome{}
	}
	if signal.Current.Count == 0 {
		return Outcome{}
	}

	avg := signal.Current.Latency.Avg
	if avg < slowQueryBaselineMS*slowQueryWarnFactor {
		return Outcome{}
	}

	severity := SeverityWarning
	if avg >= slowQueryBaselineMS*slowQueryCriticalFactor {
		severity = SeverityCritical
	}

	return Outcome{
		Triggered: true,
		Category:  CategoryPerformance,
		Severity:  severity,
		Title:     fmt.Sprintf("Slow queries on %s", signal.Key.Dimension),
		Description: fmt.Sprintf(
			"Queries on connection %q averaged %.0fms against a %.0fms baseline (worst %.0fms).",
			signal.Key.Dimension, avg, slowQueryBaselineMS, signal.Current.Latency.Max),
		SignalKey: "slow_query/" + signal.Key.Dimension,
		Evidence: map[string]any{
			"avg_latency_ms": avg,
			"max_latency_ms": signal.Current.Latency.Max,
			"baseline_ms":    slowQueryBaselineMS,
			"query_count":    signal.Current.Count,
			"avg_rows":       signal.Current.Rows.Avg,
		},
	}
}

// DependencyRiskRule fires when dependency scans report a high risk
// score for an ecosystem.
type DependencyRiskRule struct{}

// Name implements Rule.
func (r *DependencyRiskRule) Name() string { return "dependency_risk" }

// Evaluate implements Rule.
func (r *DependencyRiskRule) Evaluate(signal Signal) Outcome {
	if signal.Key.Stream != metering.StreamDepScan {
		return Outcome{}
	}
	if signal.Current.Count == 0 {
		return Outcome{}
	}

	score := signal.Current.RiskScore.Max
	if score < riskWarnScore {
		return Outcome{}
	}

	severity := SeverityWarning
	if score >= riskCriticalScore {
		severity = SeverityCritical
	}

	return Outcome{
		Triggered: true,
		Category:  CategorySecurity,
		Severity:  severity,
		Title:     fmt.Sprintf("Elevated dependency risk in %s", signal.Key.Dimension),
		Description: fmt.Sprintf(
			"Dependency scans for ecosystem %q peaked at risk score %.1f/10 (average %.1f over %d scans).",
			signal.Key.Dimension, score, signal.Current.RiskScore.Avg, signal.Current.Count),
		SignalKey: "dependency_risk/" + signal.Key.Dimension,
		Evidence: map[string]any{
			"max_risk_score": score,
			"avg_risk_score": signal.Current.RiskScore.Avg,
			"scan_count":     signal.Current.Count,
		},
	}
}
