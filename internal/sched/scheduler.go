// Package sched runs the two background tasks: the expiry reaper and the
// rating sync. Both are managed gocron jobs so shutdown stops them cleanly.
package sched

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/park285/cf-duels/internal/duel"
	"github.com/park285/cf-duels/internal/obslog"
	"go.uber.org/zap"
)

// Config carries the job timings; zero values take the production defaults.
type Config struct {
	ReaperInterval time.Duration

	RatingSyncInterval   time.Duration
	RatingSyncStartDelay time.Duration
}

// Runner owns the scheduler lifecycle.
type Runner struct {
	sched gocron.Scheduler
}

// Start registers and starts both jobs. The context bounds each run; cancel
// it and call Shutdown on exit.
func Start(ctx context.Context, mgr *duel.Manager, sync *RatingSync, cfg Config) (*Runner, error) {
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = time.Minute
	}
	if cfg.RatingSyncInterval <= 0 {
		cfg.RatingSyncInterval = 6 * time.Hour
	}
	if cfg.RatingSyncStartDelay <= 0 {
		cfg.RatingSyncStartDelay = time.Minute
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	// Expiry reaper: pending challenges past their window → expired.
	if _, err := s.NewJob(
		gocron.DurationJob(cfg.ReaperInterval),
		gocron.NewTask(func() {
			if _, err := mgr.ExpireOverdue(ctx); err != nil {
				obslog.L().Warn("reaper_run_error", zap.Error(err))
			}
		}),
	); err != nil {
		return nil, err
	}

	// Rating sync: first run after the startup delay, then on the long
	// interval.
	if _, err := s.NewJob(
		gocron.DurationJob(cfg.RatingSyncInterval),
		gocron.NewTask(func() {
			sync.Run(ctx)
		}),
		gocron.WithStartAt(gocron.WithStartDateTime(time.Now().Add(cfg.RatingSyncStartDelay))),
	); err != nil {
		return nil, err
	}

	s.Start()
	obslog.L().Info("sched_start",
		zap.Duration("reaper_interval", cfg.ReaperInterval),
		zap.Duration("rating_sync_interval", cfg.RatingSyncInterval),
	)
	return &Runner{sched: s}, nil
}

// Shutdown stops the jobs and waits for in-flight runs.
func (r *Runner) Shutdown() error {
	if r == nil || r.sched == nil {
		return nil
	}
	return r.sched.Shutdown()
}
