// Package scheduler re-runs a workflow on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job runs one scheduled execution.
type Job func(ctx context.Context) error

// Scheduler invokes a job on a standard five-field cron expression. A firing
// that arrives while the previous job is still running is skipped.
type Scheduler struct {
	CronExpr string
	cron     *cron.Cron
	job      Job
	ctx      context.Context
	logger   *slog.Logger
}

func New(cronExpr string, job Job, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		CronExpr: cronExpr,
		job:      job,
		logger: logger.With(
			"module", "scheduler",
			"cron", cronExpr,
		),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Validate() error {
	if s.CronExpr == "" {
		return errors.New("cron expression is required")
	}

	if s.job == nil {
		return errors.New("scheduled job is required")
	}

	if _, err := cron.ParseStandard(s.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

// Start registers the job and starts the cron loop. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting scheduler")
	s.ctx = ctx

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo))

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	id, err := s.cron.AddFunc(s.CronExpr, s.run)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()

	s.logger.InfoContext(ctx, "Scheduled workflow run", "entry_id", id, "next", s.cron.Entry(id).Next)

	return nil
}

func (s *Scheduler) run() {
	started := time.Now()

	s.logger.InfoContext(s.ctx, "Cron job triggered")

	if err := s.job(s.ctx); err != nil {
		s.logger.ErrorContext(s.ctx, "Scheduled run failed", "error", err, "duration", time.Since(started))

		return
	}

	s.logger.InfoContext(s.ctx, "Scheduled run finished", "duration", time.Since(started))
}

// Stop halts the schedule and waits for a running job to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping scheduler")

	if s.cron == nil {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
