package insights

import (
	"testing"

	"devguard-hq/devguard/pkg/metering"
)

func apiSignal(current, previous float64) Signal {
	return Signal{
		Key: metering.Key{ProjectID: "p1", Stream: metering.StreamAPICall, Dimension: "provider-x"},
		Current: metering.RollupMeasures{
			Count: 100,
			Cost:  metering.Aggregate{Sum: current, Avg: current / 100},
		},
		Previous: metering.RollupMeasures{
			Count: 100,
			Cost:  metering.Aggregate{Sum: previous, Avg: previous / 100},
		},
	}
}

func TestCostSpikeRule(t *testing.T) {
	rule := &CostSpikeRule{}

	tests := []struct {
		name         string
		signal       Signal
		triggered    bool
		wantSeverity Severity
	}{
		{
			name:   "wrong stream",
			signal: Signal{Key: metering.Key{Stream: metering.StreamDBQuery}, Current: metering.RollupMeasures{Cost: metering.Aggregate{Sum: 500}}},
		},
		{
			name:   "below spend floor",
			signal: apiSignal(50, 5),
		},
		{
			name:   "growth below spike ratio",
			signal: apiSignal(120, 100),
		},
		{
			name:         "spike fires warning",
			signal:       apiSignal(200, 100),
			triggered:    true,
			wantSeverity: SeverityWarning,
		},
		{
			name:         "sharp spike escalates to critical",
			signal:       apiSignal(400, 100),
			triggered:    true,
			wantSeverity: SeverityCritical,
		},
		{
			name:         "no history fires warning above floor",
			signal:       apiSignal(150, 0),
			triggered:    true,
			wantSeverity: SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := rule.Evaluate(tt.signal)
			if outcome.Triggered != tt.triggered {
				t.Fatalf("triggered = %v, want %v", outcome.Triggered, tt.triggered)
			}
			if !tt.triggered {
				return
			}
			if outcome.Severity != tt.wantSeverity {
				t.Errorf("severity = %q, want %q", outcome.Severity, tt.wantSeverity)
			}
			if outcome.Category != CategoryCost {
				t.Errorf("category = %q, want cost", outcome.Category)
			}
			if outcome.SignalKey != "cost_spike/provider-x" {
				t.Errorf("signal key = %q", outcome.SignalKey)
			}
			if outcome.Evidence["current_usd"] != tt.signal.Current.Cost.Sum {
				t.Errorf("evidence = %v", outcome.Evidence)
			}
		})
	}
}

func TestSlowQueryRule(t *testing.T) {
	rule := &SlowQueryRule{}

	signal := func(avgMS float64, count int64) Signal {
		return Signal{
			Key: metering.Key{ProjectID: "p1", Stream: metering.StreamDBQuery, Dimension: "primary"},
			Current: metering.RollupMeasures{
				Count:   count,
				Latency: metering.Aggregate{Avg: avgMS, Max: avgMS * 2},
			},
		}
	}

	tests := []struct {
		name         string
		signal       Signal
		triggered    bool
		wantSeverity Severity
	}{
		{"wrong stream", apiSignal(500, 100), false, ""},
		{"no queries", signal(5000, 0), false, ""},
		{"below threshold", signal(150, 10), false, ""},
		{"warning at 2x baseline", signal(250, 10), true, SeverityWarning},
		{"critical at 10x baseline", signal(1200, 10), true, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := rule.Evaluate(tt.signal)
			if outcome.Triggered != tt.triggered {
				t.Fatalf("triggered = %v, want %v", outcome.Triggered, tt.triggered)
			}
			if tt.triggered && outcome.Severity != tt.wantSeverity {
				t.Errorf("severity = %q, want %q", outcome.Severity, tt.wantSeverity)
			}
			if tt.triggered && outcome.Category != CategoryPerformance {
				t.Errorf("category = %q, want performance", outcome.Category)
			}
		})
	}
}

func TestDependencyRiskRule(t *testing.T) {
	rule := &DependencyRiskRule{}

	signal := func(maxScore float64, count int64) Signal {
		return Signal{
			Key: metering.Key{ProjectID: "p1", Stream: metering.StreamDepScan, Dimension: "npm"},
			Current: metering.RollupMeasures{
				Count:     count,
				RiskScore: metering.Aggregate{Max: maxScore, Avg: maxScore / 2},
			},
		}
	}

	tests := []struct {
		name         string
		signal       Signal
		triggered    bool
		wantSeverity Severity
	}{
		{"wrong stream", apiSignal(500, 100), false, ""},
		{"no scans", signal(9, 0), false, ""},
		{"low risk", signal(2, 5), false, ""},
		{"warning risk", signal(5, 5), true, SeverityWarning},
		{"critical risk", signal(8.5, 5), true, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := rule.Evaluate(tt.signal)
			if outcome.Triggered != tt.triggered {
				t.Fatalf("triggered = %v, want %v", outcome.Triggered, tt.triggered)
			}
			if tt.triggered && outcome.Severity != tt.wantSeverity {
				t.Errorf("severity = %q, want %q", outcome.Severity, tt.wantSeverity)
			}
			if tt.triggered && outcome.Category != CategorySecurity {
				t.Errorf("category = %q, want security", outcome.Category)
			}
		})
	}
}

func TestRulesArePure(t *testing.T) {
	signal := apiSignal(300, 100)
	rule := &CostSpikeRule{}

	first := rule.Evaluate(signal)
	second := rule.Evaluate(signal)
	if first.Triggered != second.Triggered || first.Severity != second.Severity || first.Description != second.Description {
		t.Error("identical signals must produce identical outcomes")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateOpen, StateAcknowledged, true},
		{StateOpen, StateResolved, true},
		{StateAcknowledged, StateResolved, true},
		{StateAcknowledged, StateOpen, false},
		{StateResolved, StateAcknowledged, false},
		{StateResolved, StateOpen, false},
		{StateOpen, StateOpen, false},
	}

	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
