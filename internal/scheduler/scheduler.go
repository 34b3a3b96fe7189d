package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/pipeline"
)

const secondsPerDay = 86400

// RunFunc executes one pipeline run to completion.
type RunFunc func(ctx context.Context) (*pipeline.RunReport, error)

// Scheduler owns the trigger cadence and the single-instance lock.
type Scheduler struct {
	cfg    *config.Config
	logger *slog.Logger
	run    RunFunc
	lock   *flock.Flock

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New builds a scheduler over the given run function.
func New(cfg *config.Config, logger *slog.Logger, run RunFunc) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		cfg:    cfg,
		logger: logger.With(logging.String(logging.FieldComponent, "scheduler")),
		run:    run,
		lock:   flock.New(cfg.LockPath()),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Interval returns the gap between run starts. Zero runs per day means no
// cadence: run once and exit.
func Interval(runsPerDay int) time.Duration {
	if runsPerDay <= 0 {
		return 0
	}
	return time.Duration(secondsPerDay/runsPerDay) * time.Second
}

// RunOnce acquires the instance lock, performs one run, and releases it.
func (s *Scheduler) RunOnce(ctx context.Context) (*pipeline.RunReport, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.run(ctx)
}

// RunForever performs runs on the configured cadence until the context is
// cancelled. With runs_per_day set to zero it degrades to a single run.
func (s *Scheduler) RunForever(ctx context.Context) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	interval := Interval(s.cfg.Scheduler.RunsPerDay)
	if interval == 0 {
		_, err := s.run(ctx)
		return err
	}

	s.logger.Info("scheduler started",
		logging.Int("runs_per_day", s.cfg.Scheduler.RunsPerDay),
		logging.Duration("interval", interval))

	for {
		started := s.now()
		report, err := s.run(ctx)
		switch {
		case err != nil && errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			s.logger.Error("scheduled run aborted", logging.Error(err))
		case report != nil:
			s.logger.Info("scheduled run finished",
				logging.Int("completed", len(report.Completed)),
				logging.Int("failed", len(report.Failed)),
				logging.Int("pending", len(report.Pending)))
		}

		next := started.Add(interval)
		wait := time.Until(next)
		if wait < 0 {
			// The run overran its slot; start the next one immediately.
			wait = 0
		}
		s.logger.Info("next run scheduled",
			logging.String("at", next.Format(time.RFC3339)),
			logging.Duration("in", wait))
		if err := s.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

func (s *Scheduler) acquire() (func(), error) {
	ok, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another chronicle instance holds %s", s.cfg.LockPath())
	}
	return func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("release run lock", logging.Error(err))
		}
	}, nil
}
