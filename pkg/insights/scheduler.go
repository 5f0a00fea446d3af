package insights

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs insight generation once a day shortly after
// midnight UTC, once the previous day's daily rollups are closed.
const DefaultSchedule = "30 0 * * *"

// Scheduler runs the generator on a cron schedule.
type Scheduler struct {
	generator *Generator
	schedule  string
	cron      *cron.Cron
	mu        sync.Mutex
	logger    *slog.Logger
	running   bool
}

// NewScheduler creates an insight generation scheduler. An empty
// schedule falls back to DefaultSchedule.
func NewScheduler(generator *Generator, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		generator: generator,
		schedule:  schedule,
		cron:      cron.New(),
		logger:    slog.Default().With("component", "insights.scheduler"),
	}
}

// Start begins scheduled generation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.runGeneration(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule insight generation: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("insight scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runGeneration executes one generation cycle.
func (s *Scheduler) runGeneration(ctx context.Context) {
	s.logger.Info("starting scheduled insight generation")

	created, err := s.generator.Generate(ctx)
	if err != nil {
		s.logger.Error("scheduled insight generation failed", "error", err)
		return
	}

	s.logger.Info("scheduled insight generation completed", "created", len(created))
}

// Stop stops the scheduler and waits for any running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("insight scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}
