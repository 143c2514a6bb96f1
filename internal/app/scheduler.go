/**
 * @description
 * Cron scheduler setup for the payment processors.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/config"
	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance. Overlapping runs of the same
// job are skipped rather than queued.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler. It returns an error
// when a schedule expression cannot be parsed.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.config.ScheduledPaymentsJobSchedule, s.jobs.ProcessScheduledPayments); err != nil {
		s.logger.Error("failed to schedule scheduled payments job", "error", err)
		return err
	}
	s.logger.Info("scheduled scheduled payments job", "schedule", s.config.ScheduledPaymentsJobSchedule)

	if _, err := s.cron.AddFunc(s.config.RecurringPaymentsJobSchedule, s.jobs.ProcessRecurringPayments); err != nil {
		s.logger.Error("failed to schedule recurring payments job", "error", err)
		return err
	}
	s.logger.Info("scheduled recurring payments job", "schedule", s.config.RecurringPaymentsJobSchedule)

	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
