// Package metering provides the telemetry aggregation core for DevGuard:
// raw event recording, multi-resolution rollups, and retention.
//
// # Architecture
//
// The metering system consists of four layers:
//
//  1. Event Recorder - validates and appends raw telemetry events
//  2. Storage Backends - persist raw events and rollup buckets (SQLite, memory)
//  3. Rollup Aggregator - computes hourly/daily buckets per series
//  4. Retention Manager - prunes raw events without touching rollups
//
// # Events
//
// An Event is one immutable, timestamped telemetry record from one of three
// streams: API provider calls, database query executions, or dependency
// vulnerability scans. Each event carries a project scope, a stream-specific
// dimension (provider, connection, ecosystem), numeric measures, and an
// opaque structured payload.
//
// # Rollups
//
// The aggregator partitions events by truncating timestamps to bucket
// boundaries and computes count/sum/avg/max/min per measure. Buckets are
// unique per (series, bucket start, width) and are replaced atomically on
// recompute, so aggregation is idempotent: re-running over a range that has
// already been aggregated reproduces identical stored measures absent new
// events.
//
// # Data Flow
//
//	record(event)
//	     ↓
//	raw event store (append-only)
//	     ↓
//	Rollup Aggregator (cron or on demand)
//	     ↓
//	rollup store ← read by budget evaluator and insight generator
//	     ↑
//	Retention Manager prunes raw events only, bounded by the
//	aggregation high-water mark
//
// # Retention Ordering
//
// Purge never outruns aggregation. The aggregator records a high-water mark
// per series after every successful run; the retention manager clamps its
// cutoff to the minimum daily watermark and reports any excluded sub-range
// as a partial result instead of purging optimistically. Conversely, the
// event store remembers its purge horizon so the aggregator can skip
// sub-ranges whose raw events are gone, leaving existing rollups untouched.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStore(storage.DefaultSQLiteConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	rec := recorder.New(store, nil)
//	defer rec.Close()
//
//	id, err := rec.Record(ctx, &metering.Event{
//	    ProjectID: "proj-1",
//	    Stream:    metering.StreamAPICall,
//	    Dimension: "openai",
//	    Timestamp: time.Now(),
//	    Measures:  metering.Measures{CostUSD: 0.50, LatencyMS: 840},
//	})
//
//	agg := rollup.NewAggregator(store, store, nil)
//	result, err := agg.Aggregate(ctx, key, metering.WidthHourly, timeRange)
//
// # Thread Safety
//
// All store implementations are safe for concurrent use. Aggregator runs for
// the same (series, width) are serialized internally; runs for different
// series proceed in parallel. Budget evaluation and insight generation read
// rollups concurrently with aggregation and always observe the last fully
// committed bucket value.
package metering
