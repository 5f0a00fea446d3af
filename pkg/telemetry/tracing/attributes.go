package tracing

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. Standard keys follow OpenTelemetry semantic
// conventions; engine-specific keys use the "devguard.*" namespace.
const (
	// Series attributes
	AttrProjectID = "devguard.project_id"
	AttrStream    = "devguard.stream"
	AttrDimension = "devguard.dimension"

	// Aggregation attributes
	AttrWidth       = "devguard.rollup.width"
	AttrBucketCount = "devguard.rollup.bucket_count"
	AttrEventCount  = "devguard.rollup.event_count"
	AttrPartial     = "devguard.rollup.partial"

	// Budget attributes
	AttrBudgetID     = "devguard.budget.id"
	AttrThresholdPct = "devguard.budget.threshold_pct"
	AttrConsumedUSD  = "devguard.budget.consumed_usd"
	AttrAlertsFired  = "devguard.budget.alerts_fired"

	// Insight attributes
	AttrInsightCategory = "devguard.insight.category"
	AttrInsightSeverity = "devguard.insight.severity"
	AttrInsightRule     = "devguard.insight.rule"

	// Retention attributes
	AttrDeletedCount = "devguard.retention.deleted_count"
	AttrCutoff       = "devguard.retention.cutoff"

	// Error attributes
	AttrErrorMessage = "error.message"
)

// SetSeriesAttributes sets the series key attributes on a span.
func SetSeriesAttributes(span trace.Span, projectID, stream, dimension string) {
	span.SetAttributes(
		attribute.String(AttrProjectID, projectID),
		attribute.String(AttrStream, stream),
		attribute.String(AttrDimension, dimension),
	)
}

// SetRollupAttributes sets aggregation run attributes on a span.
func SetRollupAttributes(span trace.Span, width string, buckets int, partial bool) {
	span.SetAttributes(
		attribute.String(AttrWidth, width),
		attribute.Int(AttrBucketCount, buckets),
		attribute.Bool(AttrPartial, partial),
	)
}

// SetBudgetAttributes sets budget evaluation attributes on a span.
func SetBudgetAttributes(span trace.Span, budgetID string, consumedUSD float64, alertsFired int) {
	span.SetAttributes(
		attribute.String(AttrBudgetID, budgetID),
		attribute.Float64(AttrConsumedUSD, consumedUSD),
		attribute.Int(AttrAlertsFired, alertsFired),
	)
}

// SetInsightAttributes sets insight generation attributes on a span.
func SetInsightAttributes(span trace.Span, category, severity, rule string) {
	span.SetAttributes(
		attribute.String(AttrInsightCategory, category),
		attribute.String(AttrInsightSeverity, severity),
		attribute.String(AttrInsightRule, rule),
	)
}

// SetPurgeAttributes sets retention purge attributes on a span.
func SetPurgeAttributes(span trace.Span, deleted int64, cutoff string) {
	span.SetAttributes(
		attribute.Int64(AttrDeletedCount, deleted),
		attribute.String(AttrCutoff, cutoff),
	)
}

// AddEvent adds a named event to the span.
//
//	AddEvent(span, "threshold_crossed",
//	    attribute.String(AttrBudgetID, budget.ID),
//	    attribute.Float64(AttrThresholdPct, band),
//	)
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// AttributeBuilder accumulates span attributes fluently.
type AttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewAttributeBuilder creates an empty builder.
func NewAttributeBuilder() *AttributeBuilder {
	return &AttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 8),
	}
}

// WithSeries adds the series key attributes.
func (ab *AttributeBuilder) WithSeries(projectID, stream, dimension string) *AttributeBuilder {
	ab.attrs = append(ab.attrs,
		attribute.String(AttrProjectID, projectID),
		attribute.String(AttrStream, stream),
		attribute.String(AttrDimension, dimension),
	)
	return ab
}

// WithWidth adds the rollup width attribute.
func (ab *AttributeBuilder) WithWidth(width string) *AttributeBuilder {
	ab.attrs = append(ab.attrs, attribute.String(AttrWidth, width))
	return ab
}

// WithBudget adds budget attributes.
func (ab *AttributeBuilder) WithBudget(budgetID string, consumedUSD float64) *AttributeBuilder {
	ab.attrs = append(ab.attrs,
		attribute.String(AttrBudgetID, budgetID),
		attribute.Float64(AttrConsumedUSD, consumedUSD),
	)
	return ab
}

// WithCustom adds one attribute with a type-switched value.
func (ab *AttributeBuilder) WithCustom(key string, value interface{}) *AttributeBuilder {
	switch v := value.(type) {
	case string:
		ab.attrs = append(ab.attrs, attribute.String(key, v))
	case int:
		ab.attrs = append(ab.attrs, attribute.Int(key, v))
	case int64:
		ab.attrs = append(ab.attrs, attribute.Int64(key, v))
	case float64:
		ab.attrs = append(ab.attrs, attribute.Float64(key, v))
	case bool:
		ab.attrs = append(ab.attrs, attribute.Bool(key, v))
	default:
		ab.attrs = append(ab.attrs, attribute.String(key, fmt.Sprintf("%v", v)))
	}
	return ab
}

// Build returns the attributes as a span start option.
func (ab *AttributeBuilder) Build() trace.SpanStartOption {
	return trace.WithAttributes(ab.attrs...)
}

// Apply sets the attributes on an existing span.
func (ab *AttributeBuilder) Apply(span trace.Span) {
	span.SetAttributes(ab.attrs...)
}

// Attributes returns the raw attribute slice.
func (ab *AttributeBuilder) Attributes() []attribute.KeyValue {
	return ab.attrs
}
