package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chronicle/internal/config"
	"chronicle/internal/fileutil"
	"chronicle/internal/journal"
	"chronicle/internal/logging"
	"chronicle/internal/notifications"
	"chronicle/internal/registry"
	"chronicle/internal/runstate"
	"chronicle/internal/services"
	"chronicle/internal/services/drive"
	"chronicle/internal/services/llm"
	"chronicle/internal/services/mail"
	"chronicle/internal/services/transcriber"
)

// Deps bundles the external collaborators one run talks to. Everything is an
// interface so tests can substitute stubs with call counters.
type Deps struct {
	Source      drive.Source
	Transcriber transcriber.Transcriber
	Completer   llm.Completer
	Sender      mail.Sender
	Notifier    notifications.Service
}

// Runner drives one pipeline run end to end.
type Runner struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *journal.Store
	registry *registry.Registry
	states   runstate.Store
	deps     Deps

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewRunner wires a runner over the journal store and the stage clients.
func NewRunner(cfg *config.Config, logger *slog.Logger, store *journal.Store, states runstate.Store, deps Deps) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}
	return &Runner{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "pipeline")),
		store:    store,
		registry: registry.New(store),
		states:   states,
		deps:     deps,
		now:      time.Now,
		sleep:    sleepContext,
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

// Run executes one full pipeline pass: discover, process every item through
// its stages, summarize each day represented, deliver, and report. A
// non-nil error means the run aborted before settling; per-item failures
// are reported, not returned.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	state, resumed, err := r.loadState(ctx)
	if err != nil {
		return nil, err
	}

	ctx = services.WithRunID(ctx, state.RunID)
	logger := r.logger.With(logging.String(logging.FieldRunID, state.RunID))
	report := &RunReport{RunID: state.RunID, StartedAt: r.now()}
	if resumed {
		logger.Info("resuming interrupted run", logging.Int("items", len(state.Items)))
		refreshDayBudgets(state)
	}

	items, skipped, err := r.discover(ctx, state)
	if err != nil {
		return nil, err
	}
	report.Discovered = len(items) + skipped
	report.Skipped = skipped
	logger.Info("discovery complete",
		logging.Int("new", len(items)),
		logging.Int("skipped", skipped))

	if len(items) > 0 {
		if err := r.deps.Notifier.NotifyRunStarted(ctx, state.RunID, len(items)); err != nil {
			logger.Warn("run-start notification failed", logging.Error(err))
		}
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return r.finish(ctx, state, report, false)
		}
		if err := r.processItem(ctx, state, item); err != nil {
			// Only cancellation propagates; item failures are recorded in
			// the state and surfaced through the report.
			return r.finish(ctx, state, report, false)
		}
	}

	if err := r.summarizeDays(ctx, state, report); err != nil {
		return r.finish(ctx, state, report, false)
	}

	return r.finish(ctx, state, report, true)
}

func (r *Runner) loadState(ctx context.Context) (*runstate.RunState, bool, error) {
	state, err := r.states.Load(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("load run state: %w", err)
	}
	if state != nil {
		return state, true, nil
	}
	return runstate.New(uuid.NewString()), false, nil
}

// item pairs a remote file with its derived identity.
type item struct {
	file     drive.File
	identity string
}

// discover lists the remote folder, derives identities, and filters out
// everything the registry already marks completed. Items carried over from
// an interrupted run stay in scope even when the remote file is gone, as
// long as their stage no longer needs it.
func (r *Runner) discover(ctx context.Context, state *runstate.RunState) ([]item, int, error) {
	files, err := r.deps.Source.List(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list recordings: %w", err)
	}

	var items []item
	skipped := 0
	seen := make(map[string]bool, len(files))
	for _, file := range files {
		identity := registry.Identity(file.Name, file.ID)
		if seen[identity] {
			skipped++
			continue
		}
		seen[identity] = true

		completed, err := r.registry.IsCompleted(ctx, identity)
		if err != nil {
			return nil, 0, fmt.Errorf("registry lookup for %s: %w", identity, err)
		}
		if completed {
			skipped++
			continue
		}

		progress := state.Item(identity, file.Name, StageAcquire)
		if progress.Failed || progress.Stage == StageCompleted {
			skipped++
			continue
		}
		progress.RemoteID = file.ID
		items = append(items, item{file: file, identity: identity})
	}

	// Interrupted-run leftovers whose remote file disappeared can still
	// finish from the local copy.
	for identity, progress := range state.Items {
		if seen[identity] || isDayKey(identity) || progress.Failed {
			continue
		}
		if progress.Stage == StageAcquire || progress.Stage == StageCompleted {
			continue
		}
		items = append(items, item{
			file:     drive.File{ID: progress.RemoteID, Name: progress.Filename},
			identity: identity,
		})
	}

	if err := r.states.Save(ctx, state); err != nil {
		return nil, 0, fmt.Errorf("save run state: %w", err)
	}
	return items, skipped, nil
}

func isDayKey(key string) bool {
	return len(key) > len(dayKeyPrefix) && key[:len(dayKeyPrefix)] == dayKeyPrefix
}

// processItem walks one item through acquire, transcribe, and optimize.
// The returned error is non-nil only for run-level aborts (cancellation or
// an unusable state store); stage failures mark the item and return nil.
func (r *Runner) processItem(ctx context.Context, state *runstate.RunState, it item) error {
	progress := state.Item(it.identity, it.file.Name, StageAcquire)
	ctx = services.WithItem(ctx, it.identity)
	logger := r.logger.With(
		logging.String(logging.FieldRunID, state.RunID),
		logging.String(logging.FieldItem, it.identity))

	for !progress.Failed {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch progress.Stage {
		case StageAcquire:
			err := r.runStage(ctx, state, progress, StageAcquire, func(callCtx context.Context) error {
				path, err := r.deps.Source.Fetch(callCtx, it.file, r.cfg.Paths.DownloadDir)
				if err != nil {
					return err
				}
				progress.LocalPath = path
				return nil
			})
			if err != nil {
				return r.failItem(ctx, state, progress, StageAcquire, err, logger)
			}
			r.advance(ctx, state, progress, StageTranscribe, logger)

		case StageTranscribe:
			if progress.LocalPath == "" || !fileutil.FileExists(progress.LocalPath) {
				// Local copy vanished between runs; start the item over.
				logger.Warn("local audio missing, re-acquiring",
					logging.String("path", progress.LocalPath))
				r.advance(ctx, state, progress, StageAcquire, logger)
				continue
			}
			err := r.runStage(ctx, state, progress, StageTranscribe, func(callCtx context.Context) error {
				result, err := r.deps.Transcriber.Transcribe(callCtx, progress.LocalPath)
				if err != nil {
					return err
				}
				day := progress.Day
				if day == "" {
					day = r.recordingDay(it.file)
				}
				id, err := r.store.InsertTranscription(callCtx, &journal.Transcription{
					Identity:        it.identity,
					Filename:        progress.Filename,
					AudioPath:       progress.LocalPath,
					Content:         result.Text,
					Day:             day,
					DurationSeconds: result.DurationSeconds,
					Model:           result.Model,
				})
				if err != nil {
					return err
				}
				progress.TranscriptionID = id
				progress.Day = day
				return nil
			})
			if err != nil {
				return r.failItem(ctx, state, progress, StageTranscribe, err, logger)
			}
			r.advance(ctx, state, progress, StageOptimize, logger)

		case StageOptimize:
			if err := r.optimizeItem(ctx, state, progress, logger); err != nil {
				return r.failItem(ctx, state, progress, StageOptimize, err, logger)
			}

		default:
			return nil
		}
	}
	return nil
}

func (r *Runner) recordingDay(file drive.File) string {
	if !file.ModifiedTime.IsZero() {
		return journal.Day(file.ModifiedTime)
	}
	return journal.Day(r.now())
}

// optimizeItem rewrites the transcription. Empty transcriptions are a valid
// terminal outcome: the item completes immediately without contributing to
// the day's aggregate.
func (r *Runner) optimizeItem(ctx context.Context, state *runstate.RunState, progress *runstate.ItemProgress, logger *slog.Logger) error {
	transcription, err := r.store.TranscriptionByIdentity(ctx, progress.Identity)
	if err != nil {
		return err
	}
	if transcription == nil {
		return services.Wrap(services.ErrTerminal, StageOptimize, "load",
			"transcription row missing for "+progress.Identity, nil)
	}

	if transcription.Content == "" {
		logger.Info("empty transcription, completing without optimize",
			logging.String(logging.FieldDay, progress.Day))
		if err := r.registry.MarkCompleted(ctx, progress.Identity, progress.Filename, progress.TranscriptionID, 0); err != nil {
			return err
		}
		r.advance(ctx, state, progress, StageCompleted, logger)
		r.cleanupSource(ctx, progress, logger)
		return nil
	}

	err = r.runStage(ctx, state, progress, StageOptimize, func(callCtx context.Context) error {
		completion, err := r.deps.Completer.Complete(callCtx, r.optimizeTemplate(), map[string]string{
			"transcription": transcription.Content,
			"day":           progress.Day,
		})
		if err != nil {
			return err
		}

		content, category := parseOptimizeOutput(completion.Content)
		var categoryID int64
		if category != "" {
			categoryID, err = r.store.EnsureCategory(callCtx, category)
			if err != nil {
				return err
			}
		}
		metadata, err := encodeOptimizeMetadata(category, completion)
		if err != nil {
			return err
		}
		_, err = r.store.InsertOptimized(callCtx, &journal.Optimized{
			TranscriptionID:  progress.TranscriptionID,
			Content:          content,
			MetadataJSON:     metadata,
			CategoryID:       categoryID,
			Day:              progress.Day,
			Model:            completion.Model,
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
		})
		return err
	})
	if err != nil {
		return err
	}
	r.advance(ctx, state, progress, StageSummarize, logger)
	return nil
}

// advance moves an item's stage pointer and persists the state. The durable
// stage output is always recorded before this is called.
func (r *Runner) advance(ctx context.Context, state *runstate.RunState, progress *runstate.ItemProgress, stage string, logger *slog.Logger) {
	progress.Stage = stage
	progress.LastError = ""
	if err := r.states.Save(ctx, state); err != nil {
		logger.Error("save run state", logging.Error(err))
	}
}

// failItem records a terminal item failure. Cancellation propagates instead
// of being treated as an item failure.
func (r *Runner) failItem(ctx context.Context, state *runstate.RunState, progress *runstate.ItemProgress, stage string, err error, logger *slog.Logger) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	progress.Failed = true
	progress.LastError = err.Error()
	if saveErr := r.states.Save(ctx, state); saveErr != nil {
		logger.Error("save run state", logging.Error(saveErr))
	}
	if regErr := r.registry.MarkFailed(ctx, progress.Identity, progress.Filename, err.Error()); regErr != nil {
		logger.Error("record registry failure", logging.Error(regErr))
	}
	logger.Warn("item failed",
		logging.String(logging.FieldStage, stage),
		logging.Error(err))
	if notifyErr := r.deps.Notifier.NotifyItemFailed(ctx, progress.Filename, stage, err); notifyErr != nil {
		logger.Warn("failure notification failed", logging.Error(notifyErr))
	}
	return nil
}

// cleanupSource deletes the remote recording after full completion when the
// operator opted in. Failure to delete never affects the run outcome.
func (r *Runner) cleanupSource(ctx context.Context, progress *runstate.ItemProgress, logger *slog.Logger) {
	if !r.cfg.Drive.DeleteAfterDownload || progress.RemoteID == "" {
		return
	}
	file := drive.File{ID: progress.RemoteID, Name: progress.Filename}
	if err := r.deps.Source.Delete(ctx, file); err != nil {
		logger.Warn("delete source recording", logging.Error(err))
	}
}

func (r *Runner) optimizeTemplate() string {
	if t := r.cfg.LLM.OptimizeTemplate; t != "" {
		return t
	}
	return llm.DefaultOptimizeTemplate
}

func (r *Runner) summarizeTemplate() string {
	if t := r.cfg.LLM.SummarizeTemplate; t != "" {
		return t
	}
	return llm.DefaultSummarizeTemplate
}

func (r *Runner) finish(ctx context.Context, state *runstate.RunState, report *RunReport, settled bool) (*RunReport, error) {
	report.FinishedAt = r.now()
	report.Completed, report.Failed, report.Pending = buildOutcomes(state)

	logger := r.logger.With(logging.String(logging.FieldRunID, state.RunID))
	if settled && len(report.Pending) == 0 {
		if err := r.states.Clear(ctx); err != nil {
			logger.Error("clear run state", logging.Error(err))
		}
	} else if err := r.states.Save(ctx, state); err != nil {
		logger.Error("save run state", logging.Error(err))
	}

	r.recordStats(report, logger)

	if report.Discovered > report.Skipped {
		if err := r.deps.Notifier.NotifyRunCompleted(ctx, report.RunID,
			len(report.Completed), len(report.Failed), report.Duration()); err != nil {
			logger.Warn("run-complete notification failed", logging.Error(err))
		}
	}

	logger.Info("run finished",
		logging.Int("completed", len(report.Completed)),
		logging.Int("failed", len(report.Failed)),
		logging.Int("pending", len(report.Pending)),
		logging.Int("entries", len(report.Entries)),
		logging.Duration("duration", report.Duration()))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) recordStats(report *RunReport, logger *slog.Logger) {
	path := r.cfg.StatsPath()
	stats, err := runstate.LoadStats(path)
	if err != nil {
		logger.Warn("load stats", logging.Error(err))
		stats = &runstate.Stats{}
	}
	stats.TotalRuns++
	if len(report.Failed) == 0 && len(report.Pending) == 0 {
		stats.SuccessfulRuns++
	}
	stats.ItemsCompleted += len(report.Completed)
	stats.ItemsFailed += len(report.Failed)
	stats.LastRunTime = report.FinishedAt
	stats.LastRunID = report.RunID
	if err := runstate.SaveStats(path, stats); err != nil {
		logger.Warn("save stats", logging.Error(err))
	}
}
