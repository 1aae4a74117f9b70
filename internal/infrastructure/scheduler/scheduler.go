// Package scheduler runs periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appctx "cardvault/internal/core/context"
	"cardvault/pkg/logger"
)

// Expirer expires cards whose expiry date has passed.
type Expirer interface {
	ExpireOverdue(ctx context.Context, today time.Time) (int, error)
}

// Config holds scheduler configuration.
type Config struct {
	// ExpirySchedule is a six-field cron spec (with seconds).
	ExpirySchedule string
	Location       *time.Location
	// JobTimeout bounds a single run.
	JobTimeout time.Duration
}

// Scheduler owns the cron runner and its jobs.
type Scheduler struct {
	cron    *cron.Cron
	expirer Expirer
	cfg     Config
	log     *logger.Logger
	now     func() time.Time
}

// New creates a scheduler. Jobs are registered by Start.
func New(expirer Expirer, cfg Config, log *logger.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}

	log = log.WithComponent("scheduler")
	cronLog := cronLogger{log: log}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	return &Scheduler{
		cron:    c,
		expirer: expirer,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.ExpirySchedule, s.ExpireCards); err != nil {
		return fmt.Errorf("schedule card expiry %q: %w", s.cfg.ExpirySchedule, err)
	}
	s.log.Infow("scheduled card expiry job", "schedule", s.cfg.ExpirySchedule, "location", s.cfg.Location.String())

	s.cron.Start()
	return nil
}

// Stop stops the runner; the returned context is done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// ExpireCards runs one expiry sweep for today in the scheduler's time zone.
func (s *Scheduler) ExpireCards() {
	ctx, cancel := context.WithTimeout(appctx.Background(context.Background(), "card-expiry"), s.cfg.JobTimeout)
	defer cancel()

	today := s.now().In(s.cfg.Location)
	// ExpireOverdue compares calendar dates; keep the local date, drop the zone.
	y, m, d := today.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	n, err := s.expirer.ExpireOverdue(ctx, day)
	if err != nil {
		s.log.Errorw("card expiry job failed", "expired", n, "error", err)
		return
	}
	s.log.Infow("card expiry job finished", "expired", n, "day", day.Format(time.DateOnly))
}

// cronLogger adapts the zap logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
