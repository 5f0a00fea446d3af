package rollup

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"devguard-hq/devguard/pkg/metering"
	"devguard-hq/devguard/pkg/telemetry/tracing"
)

// Result reports the outcome of one aggregation run.
type Result struct {
	// Key and Width identify the recomputed series.
	Key   metering.Key
	Width metering.Width

	// Range is the bucket-aligned range that was requested.
	Range metering.TimeRange

	// BucketsComputed is the number of buckets written.
	BucketsComputed int

	// EventCount is the number of raw events aggregated.
	EventCount int64

	// Partial is non-nil when part of the range was skipped because its raw
	// events were already purged. Existing rollups for skipped sub-ranges
	// are left untouched.
	Partial *metering.PartialResult
}

// Aggregator computes fixed-resolution rollup buckets from raw events.
//
// Aggregation is idempotent: each bucket is a pure function of the events
// whose timestamp falls in [bucket start, bucket start + width), events are
// summed in (timestamp, id) order, and buckets are replaced rather than
// merged, so re-running over an already-aggregated range reproduces
// identical stored measures absent new events.
//
// Runs for the same (series, width) are serialized with a keyed mutex to
// avoid interleaved partial overwrites; runs for different pairs proceed
// concurrently.
type Aggregator struct {
	events  metering.EventStore
	rollups metering.RollupStore
	logger  *slog.Logger

	// clock is swappable for tests.
	clock func() time.Time

	mu    sync.Mutex
	locks map[lockKey]*sync.Mutex
}

type lockKey struct {
	key   metering.Key
	width metering.Width
}

// NewAggregator creates a rollup aggregator over the given stores.
func NewAggregator(events metering.EventStore, rollups metering.RollupStore) *Aggregator {
	return &Aggregator{
		events:  events,
		rollups: rollups,
		logger:  slog.Default().With("component", "metering.rollup"),
		clock:   time.Now,
		locks:   make(map[lockKey]*sync.Mutex),
	}
}

// Aggregate recomputes every bucket of the given width overlapping r for
// one series, replacing stored measures. Sub-ranges whose raw events are
// below the event store's purge horizon are skipped and reported in
// Result.Partial rather than failing the run.
func (a *Aggregator) Aggregate(ctx context.Context, key metering.Key, width metering.Width, r metering.TimeRange) (_ *Result, err error) {
	ctx, span := tracing.Start(ctx, "rollup.aggregate")
	defer func() {
		tracing.SetStatus(span, err)
		span.End()
	}()
	tracing.SetSeriesAttributes(span, key.ProjectID, string(key.Stream), key.Dimension)

	if !width.Valid() {
		return nil, metering.NewValidationError("width", "unsupported bucket width "+string(width))
	}
	if r.Start.IsZero() || r.End.IsZero() || !r.End.After(r.Start) {
		return nil, metering.NewValidationError("range", "end must be after start")
	}

	// Align the requested range outward to bucket boundaries so every
	// overlapping bucket is recomputed in full.
	aligned := alignRange(r, width)

	unlock := a.lock(key, width)
	defer unlock()

	result := &Result{Key: key, Width: width, Range: aligned}

	horizon, err := a.events.PurgeHorizon(ctx)
	if err != nil {
		return nil, err
	}

	// Buckets that begin before the purge horizon may have lost events and
	// cannot be recomputed faithfully; skip them.
	computeStart := aligned.Start
	if horizon.After(computeStart) {
		safeStart := ceilToBucket(horizon, width)
		skipEnd := safeStart
		if skipEnd.After(aligned.End) {
			skipEnd = aligned.End
		}
		result.Partial = &metering.PartialResult{
			Operation: "aggregate",
			Skipped:   []metering.TimeRange{{Start: aligned.Start, End: skipEnd}},
			Reason:    "raw events purged by retention",
		}
		computeStart = safeStart
		a.logger.Warn("aggregation range truncated by purge horizon",
			"project_id", key.ProjectID,
			"stream", key.Stream,
			"dimension", key.Dimension,
			"horizon", horizon,
		)
	}

	if !computeStart.Before(aligned.End) {
		// Entire range is below the horizon; nothing to recompute.
		return result, nil
	}

	events, err := a.events.Query(ctx, &metering.EventQuery{
		ProjectID: key.ProjectID,
		Stream:    key.Stream,
		Dimension: key.Dimension,
		Start:     &computeStart,
		End:       &aligned.End,
	})
	if err != nil {
		return nil, err
	}

	buckets := Compute(key, width, events)
	if err := a.rollups.Replace(ctx, buckets); err != nil {
		return nil, err
	}

	// Only fully closed buckets count as covered: an open bucket can still
	// receive events, and the watermark bounds what retention may purge.
	mark := aligned.End
	if closed := width.Truncate(a.clock()); closed.Before(mark) {
		mark = closed
	}
	if mark.After(computeStart) {
		if err := a.rollups.SetWatermark(ctx, key, width, mark); err != nil {
			return nil, err
		}
	}

	result.BucketsComputed = len(buckets)
	result.EventCount = int64(len(events))
	tracing.SetRollupAttributes(span, string(width), len(buckets), result.Partial.Partial())

	a.logger.Info("aggregation completed",
		"project_id", key.ProjectID,
		"stream", key.Stream,
		"dimension", key.Dimension,
		"width", width,
		"buckets", len(buckets),
		"events", len(events),
		"partial", result.Partial.Partial(),
	)

	return result, nil
}

// Lookup returns the stored buckets for a series ordered by bucket start.
func (a *Aggregator) Lookup(ctx context.Context, query *metering.RollupQuery) ([]*metering.Rollup, error) {
	if !query.Width.Valid() {
		return nil, metering.NewValidationError("width", "unsupported bucket width "+string(query.Width))
	}
	return a.rollups.QueryRollups(ctx, query)
}

// Compute is the pure aggregation function: it partitions events by
// truncating timestamps to bucket boundaries and computes count/sum/avg/
// max/min per measure. Events are processed in (timestamp, id) order so
// floating-point sums are deterministic.
func Compute(key metering.Key, width metering.Width, events []*metering.Event) []*metering.Rollup {
	sorted := make([]*metering.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	byBucket := make(map[time.Time]*metering.Rollup)
	var order []time.Time

	now := time.Now().UTC()
	for _, event := range sorted {
		start := width.Truncate(event.Timestamp)
		bucket, ok := byBucket[start]
		if !ok {
			bucket = &metering.Rollup{
				Key:         key,
				BucketStart: start,
				Width:       width,
				ComputedAt:  now,
			}
			byBucket[start] = bucket
			order = append(order, start)
		}
		accumulate(&bucket.Measures, event.Measures)
	}

	rollups := make([]*metering.Rollup, 0, len(order))
	for _, start := range order {
		bucket := byBucket[start]
		finalize(&bucket.Measures)
		rollups = append(rollups, bucket)
	}

	return rollups
}

// accumulate folds one event's measures into the running bucket totals.
func accumulate(m *metering.RollupMeasures, ev metering.Measures) {
	first := m.Count == 0
	m.Count++
	accumulateOne(&m.Cost, ev.CostUSD, first)
	accumulateOne(&m.Latency, ev.LatencyMS, first)
	accumulateOne(&m.Rows, ev.Rows, first)
	accumulateOne(&m.RiskScore, ev.RiskScore, first)
}

func accumulateOne(a *metering.Aggregate, v float64, first bool) {
	a.Sum += v
	if first || v > a.Max {
		a.Max = v
	}
	if first || v < a.Min {
		a.Min = v
	}
}

// finalize computes averages once all events are folded in.
func finalize(m *metering.RollupMeasures) {
	if m.Count == 0 {
		return
	}
	n := float64(m.Count)
	m.Cost.Avg = m.Cost.Sum / n
	m.Latency.Avg = m.Latency.Sum / n
	m.Rows.Avg = m.Rows.Sum / n
	m.RiskScore.Avg = m.RiskScore.Sum / n
}

// alignRange widens r outward to bucket boundaries.
func alignRange(r metering.TimeRange, width metering.Width) metering.TimeRange {
	start := width.Truncate(r.Start)
	end := width.Truncate(r.End)
	if end.Before(r.End.UTC()) || !end.After(start) {
		end = end.Add(width.Duration())
	}
	return metering.TimeRange{Start: start, End: end}
}

// ceilToBucket rounds t up to the next bucket boundary (or returns t when
// already aligned).
func ceilToBucket(t time.Time, width metering.Width) time.Time {
	truncated := width.Truncate(t)
	if truncated.Equal(t.UTC()) {
		return truncated
	}
	return truncated.Add(width.Duration())
}

// lock serializes aggregation for one (series, width) pair.
func (a *Aggregator) lock(key metering.Key, width metering.Width) func() {
	a.mu.Lock()
	lk := lockKey{key: key, width: width}
	m, ok := a.locks[lk]
	if !ok {
		m = &sync.Mutex{}
		a.locks[lk] = m
	}
	a.mu.Unlock()

	m.Lock()
	return m.Unlock
}
