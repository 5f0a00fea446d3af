package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"devguard-hq/devguard/pkg/config"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:   true,
		Namespace: "devguard",
		Subsystem: "metering",
	}
}

// gatherValue finds a metric family by name and sums its samples.
func gatherValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range family.GetMetric() {
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				total += metric.GetCounter().GetValue()
			case dto.MetricType_HISTOGRAM:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
		return total
	}

	t.Fatalf("metric family %q not found", name)
	return 0
}

func TestRecordEvent(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(testConfig(), registry)

	collector.RecordEvent("api_call", "openai", 2*time.Millisecond)
	collector.RecordEvent("api_call", "anthropic", time.Millisecond)
	collector.RecordEvent("db_query", "primary", 500*time.Microsecond)

	if got := gatherValue(t, registry, "devguard_metering_events_total"); got != 3 {
		t.Errorf("events_total = %v, want 3", got)
	}
	if got := gatherValue(t, registry, "devguard_metering_event_write_duration_seconds"); got != 3 {
		t.Errorf("write_duration sample count = %v, want 3", got)
	}
}

func TestRecordEventDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	registry := prometheus.NewRegistry()
	collector := NewCollector(cfg, registry)

	collector.RecordEvent("api_call", "openai", time.Millisecond)

	if got := gatherValue(t, registry, "devguard_metering_events_total"); got != 0 {
		t.Errorf("events_total = %v, want 0 when disabled", got)
	}
}

func TestRecordAggregation(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(testConfig(), registry)

	collector.RecordAggregation("hourly", "success", 40*time.Millisecond, 24)
	collector.RecordAggregation("daily", "success", 100*time.Millisecond, 1)
	collector.RecordAggregation("hourly", "error", 5*time.Millisecond, 0)

	if got := gatherValue(t, registry, "devguard_metering_aggregation_runs_total"); got != 3 {
		t.Errorf("aggregation_runs_total = %v, want 3", got)
	}
	if got := gatherValue(t, registry, "devguard_metering_rollup_buckets_computed_total"); got != 25 {
		t.Errorf("rollup_buckets_computed_total = %v, want 25", got)
	}
}

func TestRecordAlertsAndInsights(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(testConfig(), registry)

	collector.RecordAlertFired("warning")
	collector.RecordAlertFired("critical")
	collector.RecordInsight("cost", "warning")

	if got := gatherValue(t, registry, "devguard_metering_alerts_fired_total"); got != 2 {
		t.Errorf("alerts_fired_total = %v, want 2", got)
	}
	if got := gatherValue(t, registry, "devguard_metering_insights_generated_total"); got != 1 {
		t.Errorf("insights_generated_total = %v, want 1", got)
	}
}

func TestRecordPurge(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(testConfig(), registry)

	collector.RecordPurge(120, false)
	collector.RecordPurge(0, true)

	if got := gatherValue(t, registry, "devguard_metering_events_purged_total"); got != 120 {
		t.Errorf("events_purged_total = %v, want 120", got)
	}
	if got := gatherValue(t, registry, "devguard_metering_purge_runs_total"); got != 2 {
		t.Errorf("purge_runs_total = %v, want 2", got)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	limiter := NewCardinalityLimiter(2)

	if !limiter.Allow("a") {
		t.Error("first label set rejected")
	}
	if !limiter.Allow("b") {
		t.Error("second label set rejected")
	}
	if !limiter.Allow("a") {
		t.Error("existing label set rejected after limit")
	}
	if limiter.Allow("c") {
		t.Error("label set beyond limit allowed")
	}
	if limiter.Count() != 2 {
		t.Errorf("Count() = %d, want 2", limiter.Count())
	}
}

func TestDimensionCardinalityBound(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	collector := NewCollector(cfg, registry)
	collector.cardinalityLimiter = NewCardinalityLimiter(1)

	collector.RecordEvent("db_query", "conn-1", time.Millisecond)
	collector.RecordEvent("db_query", "conn-2", time.Millisecond)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	foundOther := false
	for _, family := range families {
		if family.GetName() != "devguard_metering_events_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "dimension" && label.GetValue() == "conn-2" {
					t.Error("dimension beyond cardinality limit was not folded")
				}
				if label.GetName() == "dimension" && label.GetValue() == "other" {
					foundOther = true
				}
			}
		}
	}
	if !foundOther {
		t.Error("folded dimension label 'other' not found")
	}
}

func TestHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(testConfig(), registry)

	if collector.Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
	if collector.Registry() != registry {
		t.Error("Registry() did not return the provided registry")
	}
}

func TestDefaultBuckets(t *testing.T) {
	cfg := testConfig()
	NewCollector(cfg, prometheus.NewRegistry())

	if len(cfg.WriteDurationBuckets) == 0 {
		t.Error("write duration buckets not defaulted")
	}
	if len(cfg.RunDurationBuckets) == 0 {
		t.Error("run duration buckets not defaulted")
	}
	if cfg.Namespace != "devguard" || !strings.HasPrefix(cfg.Subsystem, "metering") {
		t.Errorf("namespace/subsystem not defaulted: %s/%s", cfg.Namespace, cfg.Subsystem)
	}
}
