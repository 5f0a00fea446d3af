package metering

import (
	"context"
	"time"
)

// Stream identifies which telemetry pipeline produced an event.
type Stream string

const (
	// StreamAPICall is provider API call telemetry (cost, latency, tokens).
	StreamAPICall Stream = "api_call"
	// StreamDBQuery is database query execution telemetry.
	StreamDBQuery Stream = "db_query"
	// StreamDepScan is dependency vulnerability scan telemetry.
	StreamDepScan Stream = "dep_scan"
)

// Valid reports whether s is a known stream.
func (s Stream) Valid() bool {
	switch s {
	case StreamAPICall, StreamDBQuery, StreamDepScan:
		return true
	}
	return false
}

// Measures contains the numeric measures attached to a raw event.
// Not every stream populates every measure; unused measures are zero.
type Measures struct {
	// CostUSD is the monetary cost of the call in USD (api_call).
	CostUSD float64 `json:"cost_usd"`

	// LatencyMS is the observed latency or execution time in milliseconds
	// (api_call, db_query).
	LatencyMS float64 `json:"latency_ms"`

	// Rows is the number of rows examined by a query (db_query).
	Rows float64 `json:"rows"`

	// RiskScore is the overall risk score of a scan, 0-10 (dep_scan).
	RiskScore float64 `json:"risk_score"`
}

// Event is a single immutable telemetry record. Events are append-only:
// created once by the recorder, never mutated, and deleted only by the
// retention manager after their window expires.
type Event struct {
	// ID is a UUID v4 assigned by the recorder.
	ID string `json:"id"`

	// ProjectID scopes the event to a tenant project.
	ProjectID string `json:"project_id"`

	// Stream identifies the producing pipeline.
	Stream Stream `json:"stream"`

	// Dimension is the stream-specific grouping key: provider name for
	// api_call, connection identifier for db_query, ecosystem for dep_scan.
	Dimension string `json:"dimension"`

	// Timestamp is when the measured activity happened. Bucketing is done
	// on this field, not on arrival order.
	Timestamp time.Time `json:"timestamp"`

	// Measures holds the numeric measures for this event.
	Measures Measures `json:"measures"`

	// Payload carries opaque structured data (tokens used, explain plan,
	// index usage). The engine stores it verbatim and never interprets it.
	Payload map[string]any `json:"payload,omitempty"`

	// Environment is the deployment environment ("production", "staging").
	Environment string `json:"environment"`

	// RecordedAt is when the recorder accepted the event.
	RecordedAt time.Time `json:"recorded_at"`
}

// Width is a fixed rollup bucket resolution.
type Width string

const (
	// WidthHourly buckets events into one-hour windows.
	WidthHourly Width = "hourly"
	// WidthDaily buckets events into 24-hour windows. Daily buckets are
	// recomputed from raw events, never derived from hourly buckets.
	WidthDaily Width = "daily"
)

// Valid reports whether w is a supported bucket width.
func (w Width) Valid() bool {
	return w == WidthHourly || w == WidthDaily
}

// Duration returns the bucket width as a duration.
func (w Width) Duration() time.Duration {
	if w == WidthDaily {
		return 24 * time.Hour
	}
	return time.Hour
}

// Truncate returns the start of the bucket containing t. All bucketing is
// done in UTC so hourly and daily boundaries are stable.
func (w Width) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(w.Duration())
}

// Key identifies a rollup series: one tenant project, one stream, one
// dimension value.
type Key struct {
	ProjectID string `json:"project_id"`
	Stream    Stream `json:"stream"`
	Dimension string `json:"dimension"`
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether the range is unset.
func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Aggregate holds the summary statistics for one measure within a bucket.
type Aggregate struct {
	Sum float64 `json:"sum"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
	Min float64 `json:"min"`
}

// RollupMeasures is the full set of aggregated measures for one bucket.
type RollupMeasures struct {
	// Count is the number of events in the bucket.
	Count int64 `json:"count"`

	Cost      Aggregate `json:"cost"`
	Latency   Aggregate `json:"latency"`
	Rows      Aggregate `json:"rows"`
	RiskScore Aggregate `json:"risk_score"`
}

// Rollup is one fixed-resolution summary bucket. A rollup is unique per
// (key, bucket start, width); recomputation overwrites the bucket in place.
// Rollups survive raw-event pruning, which is the reason they exist.
type Rollup struct {
	Key         Key            `json:"key"`
	BucketStart time.Time      `json:"bucket_start"`
	Width       Width          `json:"width"`
	Measures    RollupMeasures `json:"measures"`

	// ComputedAt is when the aggregator last wrote this bucket.
	ComputedAt time.Time `json:"computed_at"`
}

// BucketEnd returns the exclusive end of the bucket.
func (r *Rollup) BucketEnd() time.Time {
	return r.BucketStart.Add(r.Width.Duration())
}

// EventQuery filters raw events. Zero-valued fields are ignored.
type EventQuery struct {
	ProjectID string     `json:"project_id,omitempty"`
	Stream    Stream     `json:"stream,omitempty"`
	Dimension string     `json:"dimension,omitempty"`
	Start     *time.Time `json:"start,omitempty"` // inclusive
	End       *time.Time `json:"end,omitempty"`   // exclusive

	// Pagination.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// RollupQuery selects rollup buckets for one series and width over a range.
type RollupQuery struct {
	Key   Key       `json:"key"`
	Width Width     `json:"width"`
	Range TimeRange `json:"range"`
}

// EventStore is the raw event store. Implementations must be safe for
// concurrent use and must make each Append an atomic single-record write.
type EventStore interface {
	// Append durably persists one event. The event is never modified after
	// a successful append.
	Append(ctx context.Context, event *Event) error

	// Query returns events matching the filters, ordered by (timestamp, id)
	// ascending so aggregation over the result is deterministic.
	Query(ctx context.Context, query *EventQuery) ([]*Event, error)

	// Count returns the number of events matching the filters.
	Count(ctx context.Context, query *EventQuery) (int64, error)

	// Keys returns the distinct series present in the given range. Used by
	// schedulers to discover what needs aggregating.
	Keys(ctx context.Context, r TimeRange) ([]Key, error)

	// DeleteBefore removes all events with timestamp strictly before cutoff
	// and advances the purge horizon. Returns the number of events deleted.
	// Only the retention manager calls this.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// PurgeHorizon returns the latest cutoff ever purged. Events before the
	// horizon are gone; aggregation over ranges below it must be skipped.
	// Returns the zero time when nothing has been purged.
	PurgeHorizon(ctx context.Context) (time.Time, error)

	// Close releases resources held by the store.
	Close() error
}

// RollupStore is the rollup bucket store. The write contract is atomic
// bucket replacement: readers never observe a torn bucket, only the last
// fully committed value.
type RollupStore interface {
	// Replace atomically overwrites each bucket in rollups. Existing
	// measures for a (key, bucket start, width) are replaced, never merged.
	Replace(ctx context.Context, rollups []*Rollup) error

	// QueryRollups returns buckets matching the query ordered by bucket
	// start ascending.
	QueryRollups(ctx context.Context, query *RollupQuery) ([]*Rollup, error)

	// Watermark returns the aggregation high-water mark for a series and
	// width: the exclusive end of the newest range the aggregator has fully
	// covered. Zero time when the series has never been aggregated.
	Watermark(ctx context.Context, key Key, width Width) (time.Time, error)

	// SetWatermark advances the aggregation high-water mark. A watermark
	// never moves backwards; implementations keep the maximum.
	SetWatermark(ctx context.Context, key Key, width Width, mark time.Time) error

	// Watermarks returns all high-water marks for the given width, keyed by
	// series. The retention manager uses the minimum to bound purges.
	Watermarks(ctx context.Context, width Width) (map[Key]time.Time, error)

	// Close releases resources held by the store.
	Close() error
}
