package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"devguard-hq/devguard/pkg/metering"
	"devguard-hq/devguard/pkg/metering/export"
	"devguard-hq/devguard/pkg/telemetry/metrics"
	"devguard-hq/devguard/pkg/telemetry/tracing"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain raw events.
	// 0 means keep events forever (no pruning).
	RetentionDays int

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string

	// ArchiveBeforeDelete enables archiving events before deletion.
	ArchiveBeforeDelete bool

	// ArchivePath is the directory to store archived events.
	ArchivePath string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays:       90,
		PruneSchedule:       "0 3 * * *",
		ArchiveBeforeDelete: false,
		ArchivePath:         "data/archives/",
	}
}

// Result reports the outcome of one purge run.
type Result struct {
	// Requested is the cutoff implied by the retention period.
	Requested time.Time

	// Effective is the cutoff actually purged, clamped so that no event
	// is deleted before aggregation has covered it.
	Effective time.Time

	// Deleted is the number of raw events removed.
	Deleted int64

	// Excluded is non-nil when part of the requested range was held back
	// because its series were not yet fully aggregated.
	Excluded *metering.PartialResult
}

// Pruner enforces the retention window on raw telemetry events.
//
// Purging never outruns aggregation: the requested cutoff is clamped to
// the oldest daily aggregation watermark among the series that still have
// events in the purge range. Events a crashed or lagging aggregator has
// not summarized stay on disk until it catches up; the next purge cycle
// reclaims them.
type Pruner struct {
	events    metering.EventStore
	rollups   metering.RollupStore
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
	metrics   *metrics.Collector

	// clock is swappable for tests.
	clock func() time.Time
}

// SetMetrics attaches a metrics collector. A nil collector records nothing.
func (p *Pruner) SetMetrics(c *metrics.Collector) {
	p.metrics = c
}

// NewPruner creates a new retention pruner.
func NewPruner(events metering.EventStore, rollups metering.RollupStore, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	pruner := &Pruner{
		events:  events,
		rollups: rollups,
		config:  config,
		logger:  slog.Default().With("component", "metering.retention"),
		clock:   time.Now,
	}

	pruner.scheduler = NewScheduler(pruner)

	return pruner
}

// Prune deletes raw events older than the retention period, bounded by the
// aggregation watermarks. Returns a Result describing what was deleted and
// what was held back.
func (p *Pruner) Prune(ctx context.Context) (*Result, error) {
	if p.config.RetentionDays <= 0 {
		return &Result{}, nil
	}

	cutoff := p.clock().UTC().AddDate(0, 0, -p.config.RetentionDays)
	return p.PruneBefore(ctx, cutoff)
}

// PruneBefore deletes raw events with timestamp strictly before cutoff,
// clamped so that no un-aggregated event is lost.
func (p *Pruner) PruneBefore(ctx context.Context, cutoff time.Time) (_ *Result, err error) {
	ctx, span := tracing.Start(ctx, "retention.prune")
	defer func() {
		tracing.SetStatus(span, err)
		span.End()
	}()

	cutoff = cutoff.UTC()
	result := &Result{Requested: cutoff, Effective: cutoff}

	effective, held, err := p.clampToWatermarks(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to bound purge by aggregation watermarks: %w", err)
	}

	if len(held) > 0 {
		result.Effective = effective
		result.Excluded = &metering.PartialResult{
			Operation: "purge",
			Skipped:   []metering.TimeRange{{Start: effective, End: cutoff}},
			Reason:    fmt.Sprintf("%d series not yet aggregated past cutoff", len(held)),
		}
		p.logger.Warn("purge cutoff clamped by aggregation watermarks",
			"requested_cutoff", cutoff,
			"effective_cutoff", effective,
			"held_series", len(held),
		)
	}

	if effective.IsZero() {
		// At least one series has never been aggregated; nothing is safe
		// to purge yet.
		return result, nil
	}

	if p.config.ArchiveBeforeDelete {
		if err := p.archive(ctx, effective); err != nil {
			return nil, fmt.Errorf("archive before delete failed: %w", err)
		}
	}

	deleted, err := p.events.DeleteBefore(ctx, effective)
	if err != nil {
		return nil, fmt.Errorf("purge failed: %w", err)
	}
	result.Deleted = deleted
	p.metrics.RecordPurge(deleted, result.Excluded.Partial())
	tracing.SetPurgeAttributes(span, deleted, effective.Format(time.RFC3339))

	if deleted == 0 {
		p.logger.Debug("no events purged",
			"effective_cutoff", effective,
		)
	} else {
		p.logger.Info("retention purge completed",
			"deleted_count", deleted,
			"effective_cutoff", effective,
			"retention_days", p.config.RetentionDays,
		)
	}

	return result, nil
}

// clampToWatermarks lowers cutoff to the oldest daily watermark among the
// series that still have raw events before cutoff. A series that has never
// been aggregated holds the cutoff at the zero time, which blocks the purge
// entirely until the aggregator has run.
func (p *Pruner) clampToWatermarks(ctx context.Context, cutoff time.Time) (time.Time, []metering.Key, error) {
	keys, err := p.events.Keys(ctx, metering.TimeRange{Start: time.Time{}, End: cutoff})
	if err != nil {
		return time.Time{}, nil, err
	}
	if len(keys) == 0 {
		return cutoff, nil, nil
	}

	marks, err := p.rollups.Watermarks(ctx, metering.WidthDaily)
	if err != nil {
		return time.Time{}, nil, err
	}

	effective := cutoff
	var held []metering.Key
	for _, key := range keys {
		mark := marks[key]
		if mark.Before(cutoff) {
			held = append(held, key)
			if mark.Before(effective) {
				effective = mark
			}
		}
	}

	return effective, held, nil
}

// archive exports the events about to be purged to a JSON file.
func (p *Pruner) archive(ctx context.Context, cutoff time.Time) error {
	events, err := p.events.Query(ctx, &metering.EventQuery{End: &cutoff})
	if err != nil {
		return fmt.Errorf("failed to query events for archiving: %w", err)
	}

	if len(events) == 0 {
		p.logger.Debug("no events to archive")
		return nil
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	archiveFile := filepath.Join(p.config.ArchivePath,
		fmt.Sprintf("events-%s.json", p.clock().UTC().Format("2006-01-02-150405")))
	f, err := os.Create(archiveFile)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	exporter := export.NewJSONExporter(true)
	if err := exporter.Export(ctx, events, f); err != nil {
		return fmt.Errorf("failed to export events to archive: %w", err)
	}

	p.logger.Info("events archived before purge",
		"archive_file", archiveFile,
		"event_count", len(events),
	)

	return nil
}

// Start starts the automatic pruning scheduler.
// Call this when starting the application.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic pruning scheduler.
// Call this during graceful shutdown.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// IsRunning reports whether the pruning scheduler is active.
func (p *Pruner) IsRunning() bool {
	return p.scheduler.IsRunning()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
