package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"devguard-hq/devguard/pkg/metering"
	"devguard-hq/devguard/pkg/telemetry/metrics"
)

// SchedulerConfig configures periodic aggregation.
type SchedulerConfig struct {
	// Schedule is a cron expression for aggregation runs.
	// Example: "0 */6 * * *" (every 6 hours). Empty disables the scheduler.
	Schedule string

	// Lookback is how far back each run re-aggregates. Re-running over an
	// already-aggregated range is safe because recomputation is idempotent.
	// Default: 48 hours.
	Lookback time.Duration

	// Widths are the bucket widths to recompute. Default: hourly and daily.
	Widths []metering.Width
}

// DefaultSchedulerConfig returns the default aggregation schedule.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Schedule: "0 */6 * * *",
		Lookback: 48 * time.Hour,
		Widths:   []metering.Width{metering.WidthHourly, metering.WidthDaily},
	}
}

// Scheduler periodically re-aggregates every series seen in the lookback
// window. It discovers series from the raw event store, so newly ingested
// dimensions are picked up without configuration.
type Scheduler struct {
	aggregator *Aggregator
	events     metering.EventStore
	config     *SchedulerConfig
	cron       *cron.Cron
	mu         sync.Mutex
	logger     *slog.Logger
	running    bool
	metrics    *metrics.Collector
}

// SetMetrics attaches a metrics collector. A nil collector records nothing.
func (s *Scheduler) SetMetrics(c *metrics.Collector) {
	s.metrics = c
}

// NewScheduler creates an aggregation scheduler.
func NewScheduler(aggregator *Aggregator, events metering.EventStore, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if config.Lookback <= 0 {
		config.Lookback = 48 * time.Hour
	}
	if len(config.Widths) == 0 {
		config.Widths = []metering.Width{metering.WidthHourly, metering.WidthDaily}
	}

	return &Scheduler{
		aggregator: aggregator,
		events:     events,
		config:     config,
		cron:       cron.New(),
		logger:     slog.Default().With("component", "metering.rollup.scheduler"),
	}
}

// Start begins scheduled aggregation based on the cron expression. If the
// schedule is empty, the scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" {
		s.logger.Info("aggregation schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.config.Schedule, err)
	}

	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.runAggregation(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule aggregation: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("aggregation scheduler started",
		"schedule", s.config.Schedule,
		"lookback", s.config.Lookback,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce aggregates every series in the lookback window immediately.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.aggregateAll(ctx)
}

// runAggregation executes one scheduled aggregation cycle.
func (s *Scheduler) runAggregation(ctx context.Context) {
	s.logger.Info("starting scheduled aggregation")

	if err := s.aggregateAll(ctx); err != nil {
		s.logger.Error("scheduled aggregation failed", "error", err)
		return
	}

	s.logger.Info("scheduled aggregation completed")
}

// aggregateAll re-aggregates every series seen in the lookback window for
// every configured width.
func (s *Scheduler) aggregateAll(ctx context.Context) error {
	now := time.Now().UTC()
	window := metering.TimeRange{Start: now.Add(-s.config.Lookback), End: now}

	keys, err := s.events.Keys(ctx, window)
	if err != nil {
		return err
	}

	for _, key := range keys {
		for _, width := range s.config.Widths {
			started := time.Now()
			result, err := s.aggregator.Aggregate(ctx, key, width, window)
			if err != nil {
				s.metrics.RecordAggregation(string(width), "error", time.Since(started), 0)
				// One failed series must not starve the rest; the next
				// cycle retries with the same idempotent recompute.
				s.logger.Error("aggregation failed for series",
					"project_id", key.ProjectID,
					"stream", key.Stream,
					"dimension", key.Dimension,
					"width", width,
					"error", err,
				)
				continue
			}
			status := "complete"
			if result.Partial.Partial() {
				status = "partial"
				s.logger.Warn("aggregation partially completed",
					"project_id", key.ProjectID,
					"dimension", key.Dimension,
					"width", width,
					"warning", result.Partial.String(),
				)
			}
			s.metrics.RecordAggregation(string(width), status, time.Since(started), result.BucketsComputed)
		}
	}

	return nil
}

// Stop stops the scheduler and waits for any running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("aggregation scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}
