package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"chronicle/internal/pipeline"
	"chronicle/internal/testsupport"
)

func TestInterval(t *testing.T) {
	cases := []struct {
		runsPerDay int
		want       time.Duration
	}{
		{0, 0},
		{-3, 0},
		{1, 24 * time.Hour},
		{2, 12 * time.Hour},
		{4, 6 * time.Hour},
		{24, time.Hour},
		{96, 15 * time.Minute},
	}
	for _, tc := range cases {
		if got := Interval(tc.runsPerDay); got != tc.want {
			t.Errorf("Interval(%d) = %v, want %v", tc.runsPerDay, got, tc.want)
		}
	}
}

func TestRunOnceHoldsAndReleasesLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	calls := 0
	sched := New(cfg, nil, func(ctx context.Context) (*pipeline.RunReport, error) {
		calls++
		return &pipeline.RunReport{RunID: "run-1"}, nil
	})

	report, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if calls != 1 || report.RunID != "run-1" {
		t.Fatalf("unexpected outcome calls=%d report=%+v", calls, report)
	}

	// The lock must be free again after the run.
	if _, err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce(second): %v", err)
	}
}

func TestRunOnceRefusedWhileLockHeld(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	started := make(chan struct{})
	release := make(chan struct{})
	blocked := New(cfg, nil, func(ctx context.Context) (*pipeline.RunReport, error) {
		close(started)
		<-release
		return &pipeline.RunReport{}, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := blocked.RunOnce(context.Background()); err != nil {
			t.Errorf("RunOnce(holder): %v", err)
		}
	}()
	<-started

	contender := New(cfg, nil, func(ctx context.Context) (*pipeline.RunReport, error) {
		t.Error("contender must not run while the lock is held")
		return nil, nil
	})
	_, err := contender.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected a lock conflict error")
	}
	if !strings.Contains(err.Error(), "another chronicle instance") {
		t.Fatalf("unexpected error %v", err)
	}

	close(release)
	wg.Wait()
}

func TestRunForeverSingleRunWhenNoCadence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Scheduler.RunsPerDay = 0

	calls := 0
	sched := New(cfg, nil, func(ctx context.Context) (*pipeline.RunReport, error) {
		calls++
		return &pipeline.RunReport{}, nil
	})

	if err := sched.RunForever(context.Background()); err != nil {
		t.Fatalf("RunForever: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one run, got %d", calls)
	}
}

func TestRunForeverSleepsBetweenRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Scheduler.RunsPerDay = 24

	calls := 0
	sched := New(cfg, nil, func(ctx context.Context) (*pipeline.RunReport, error) {
		calls++
		return &pipeline.RunReport{}, nil
	})

	var slept []time.Duration
	sched.now = func() time.Time { return time.Now() }
	sched.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		if len(slept) == 3 {
			return context.Canceled
		}
		return nil
	}

	if err := sched.RunForever(context.Background()); err != nil {
		t.Fatalf("RunForever: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 runs before cancellation, got %d", calls)
	}
	for _, d := range slept {
		if d < 0 || d > time.Hour {
			t.Fatalf("sleep outside the hourly slot: %v", d)
		}
	}
}

func TestRunForeverStopsOnCancelledRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Scheduler.RunsPerDay = 24

	sched := New(cfg, nil, func(ctx context.Context) (*pipeline.RunReport, error) {
		return nil, context.Canceled
	})

	if err := sched.RunForever(context.Background()); err != nil {
		t.Fatalf("cancellation is a clean stop, got %v", err)
	}
}

func TestRunForeverKeepsGoingAfterAbortedRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Scheduler.RunsPerDay = 24

	calls := 0
	sched := New(cfg, nil, func(ctx context.Context) (*pipeline.RunReport, error) {
		calls++
		return nil, errors.New("state store unusable")
	})
	sched.sleep = func(ctx context.Context, d time.Duration) error {
		if calls >= 2 {
			return context.Canceled
		}
		return nil
	}

	if err := sched.RunForever(context.Background()); err != nil {
		t.Fatalf("RunForever: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected the loop to survive an aborted run, got %d runs", calls)
	}
}
