package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a sweep every hour.
const DefaultSchedule = "@every 1h"

// ValidateSchedule checks a cron expression or descriptor.
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// Scheduler runs the sweeper on a cron schedule.
type Scheduler struct {
	sweeper  *Sweeper
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates a scheduler. An empty schedule disables it.
func NewScheduler(sweeper *Sweeper, schedule string) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   slog.Default().With("component", "retention.scheduler"),
	}
}

// Start schedules sweeps and returns immediately. The scheduler stops when
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if err := ValidateSchedule(s.schedule); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.runSweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("retention scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) runSweep(ctx context.Context) {
	report, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("scheduled sweep failed", "error", err)
		return
	}
	if report.Deleted() == 0 {
		s.logger.Debug("scheduled sweep completed, nothing expired")
	}
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("retention scheduler stopped")
	}
}

// IsRunning reports whether sweeps are scheduled.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or nil when not running.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
