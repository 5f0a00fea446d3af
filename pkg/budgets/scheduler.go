package budgets

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule evaluates budgets at the top of every hour, matching
// the hourly rollup cadence consumption is read from.
const DefaultSchedule = "0 * * * *"

// Scheduler runs the evaluator on a cron schedule.
type Scheduler struct {
	evaluator *Evaluator
	schedule  string
	cron      *cron.Cron
	mu        sync.Mutex
	logger    *slog.Logger
	running   bool
}

// NewScheduler creates a budget evaluation scheduler. An empty schedule
// falls back to DefaultSchedule.
func NewScheduler(evaluator *Evaluator, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		evaluator: evaluator,
		schedule:  schedule,
		cron:      cron.New(),
		logger:    slog.Default().With("component", "budgets.scheduler"),
	}
}

// Start begins scheduled evaluation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.runEvaluation(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule budget evaluation: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("budget scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runEvaluation executes one evaluation cycle.
func (s *Scheduler) runEvaluation(ctx context.Context) {
	s.logger.Debug("starting scheduled budget evaluation")

	evals, err := s.evaluator.EvaluateAll(ctx)
	if err != nil {
		s.logger.Error("scheduled budget evaluation had failures", "error", err)
	}

	fired := 0
	for _, eval := range evals {
		fired += len(eval.Fired)
	}

	if fired > 0 {
		s.logger.Info("scheduled budget evaluation completed",
			"budgets_evaluated", len(evals),
			"alerts_fired", fired,
		)
	} else {
		s.logger.Debug("scheduled budget evaluation completed",
			"budgets_evaluated", len(evals),
		)
	}
}

// Stop stops the scheduler and waits for any running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("budget scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}
