package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chronicle/internal/journal"
	"chronicle/internal/logging"
	"chronicle/internal/runstate"
	"chronicle/internal/services"
)

// runStage drives one stage call for one progress record with the persisted
// retry budget. The call closure performs the external call and the durable
// write of its output; when it returns nil the caller advances the stage
// pointer. Attempt counts are saved before each call so a restart never
// resets the budget, and every attempt leaves an append-only row in the
// journal store.
func (r *Runner) runStage(ctx context.Context, state *runstate.RunState, progress *runstate.ItemProgress, stage string, call func(context.Context) error) error {
	maxAttempts := r.cfg.Workflow.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	stageCtx := services.WithStage(ctx, stage)
	logger := r.logger.With(
		logging.String(logging.FieldRunID, state.RunID),
		logging.String(logging.FieldItem, progress.Identity),
		logging.String(logging.FieldStage, stage))

	for {
		if progress.AttemptCount(stage) >= maxAttempts {
			return services.Wrap(services.ErrTerminal, stage, "retry",
				fmt.Sprintf("retry budget exhausted after %d attempts (last: %s)",
					progress.AttemptCount(stage), progress.LastError), nil)
		}
		attempt := progress.RecordAttempt(stage)
		if err := r.states.Save(ctx, state); err != nil {
			return fmt.Errorf("save run state: %w", err)
		}

		callCtx := stageCtx
		cancel := func() {}
		if timeout := r.cfg.Workflow.StageTimeout; timeout > 0 {
			callCtx, cancel = context.WithTimeout(stageCtx, time.Duration(timeout)*time.Second)
		}
		err := call(callCtx)
		cancel()

		r.recordAttempt(ctx, state.RunID, progress.Identity, stage, attempt, err, logger)

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		progress.LastError = err.Error()
		if !services.IsTransient(err) {
			return err
		}
		if progress.AttemptCount(stage) >= maxAttempts {
			return services.Wrap(services.ErrTerminal, stage, "retry",
				fmt.Sprintf("retry budget exhausted after %d attempts", attempt), err)
		}

		delay := r.backoffDelay(attempt)
		logger.Warn("transient stage failure, backing off",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// backoffDelay doubles per attempt from the configured base, capped at the
// configured maximum.
func (r *Runner) backoffDelay(attempt int) time.Duration {
	base := time.Duration(r.cfg.Workflow.RetryBaseDelay) * time.Second
	if base < 0 {
		base = 0
	}
	max := time.Duration(r.cfg.Workflow.RetryMaxDelay) * time.Second
	if max < base {
		max = base
	}
	delay := base
	for i := 1; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	return delay
}

func (r *Runner) recordAttempt(ctx context.Context, runID, identity, stage string, attempt int, callErr error, logger *slog.Logger) {
	outcome := journal.AttemptSucceeded
	errText := ""
	if callErr != nil {
		errText = callErr.Error()
		if services.IsTransient(callErr) {
			outcome = journal.AttemptTransient
		} else {
			outcome = journal.AttemptTerminal
		}
	}
	record := &journal.Attempt{
		RunID:    runID,
		Identity: identity,
		Stage:    stage,
		Attempt:  attempt,
		Outcome:  outcome,
		Error:    errText,
	}
	if err := r.store.RecordAttempt(ctx, record); err != nil {
		logger.Warn("record stage attempt", logging.Error(err))
	}
}
