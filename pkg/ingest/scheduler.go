package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs ingestion cycles on a cron schedule.
type Scheduler struct {
	runner   *Runner
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates an ingest scheduler. The schedule uses standard
// five-field cron syntax.
//
// Common expressions:
//   - "*/30 * * * *" - Every 30 minutes
//   - "0 * * * *"    - Hourly
//   - "0 6 * * *"    - Daily at 6 AM
func NewScheduler(runner *Runner, schedule string) *Scheduler {
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "ingest.scheduler"),
	}
}

// Start begins scheduled ingestion. If the schedule is empty, the scheduler
// does nothing; manual runs through the admin API remain available.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("ingest schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.runCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule ingestion: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("ingest scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if err := s.runner.Run(ctx); err != nil {
		s.logger.Error("scheduled ingest cycle failed", "error", err)
	}
}

// Stop stops the scheduler and waits for any running cycle to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("ingest scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
