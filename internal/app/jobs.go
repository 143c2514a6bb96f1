/**
 * @description
 * Scheduled job implementations. Each job asks one processor to execute the
 * payments due at the current clock time.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/config"
)

// DueProcessor executes the payments due at now.
type DueProcessor interface {
	ProcessDue(ctx context.Context, now time.Time) (BatchResult, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	scheduled DueProcessor
	recurring DueProcessor
	clock     Clock
	logger    *slog.Logger
	config    config.Config
}

// NewJobs creates a new Jobs runner.
func NewJobs(scheduled, recurring DueProcessor, clock Clock, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		scheduled: scheduled,
		recurring: recurring,
		clock:     clock,
		logger:    logger,
		config:    cfg,
	}
}

// ProcessScheduledPayments runs the scheduled payment processor once.
func (j *Jobs) ProcessScheduledPayments() {
	j.run("scheduled payments", j.scheduled)
}

// ProcessRecurringPayments runs the recurring payment processor once.
func (j *Jobs) ProcessRecurringPayments() {
	j.run("recurring payments", j.recurring)
}

func (j *Jobs) run(name string, processor DueProcessor) {
	ctx := context.Background()
	if timeout := j.config.JobTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	now := j.clock.Now()
	j.logger.Debug("starting job", "job", name, "now", now)

	result, err := processor.ProcessDue(ctx, now)
	if err != nil {
		j.logger.Error("job failed", "job", name, "error", err)
		return
	}
	if result.Claimed == 0 {
		j.logger.Debug("no payments due", "job", name)
		return
	}
	j.logger.Info("job finished", "job", name, "claimed", result.Claimed, "succeeded", result.Succeeded, "failed", result.Failed)
}
