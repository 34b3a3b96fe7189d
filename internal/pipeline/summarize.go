package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"chronicle/internal/journal"
	"chronicle/internal/logging"
	"chronicle/internal/runstate"
	"chronicle/internal/services"
	"chronicle/internal/services/llm"
	"chronicle/internal/services/mail"
)

// summarizeDays groups every item waiting at the summarize stage by its
// calendar day, produces one journal entry per day, marks the contributing
// items completed only after the entry is durably persisted, and then
// attempts delivery. Delivery failure is recorded and retryable but never
// rolls back completion.
func (r *Runner) summarizeDays(ctx context.Context, state *runstate.RunState, report *RunReport) error {
	byDay := make(map[string][]*runstate.ItemProgress)
	inScope := make(map[string]bool)
	for key, progress := range state.Items {
		if isDayKey(key) || progress.Failed || progress.Stage != StageSummarize {
			continue
		}
		if progress.Day == "" {
			continue
		}
		byDay[progress.Day] = append(byDay[progress.Day], progress)
		inScope[progress.Day] = true
	}
	// An undelivered entry from an interrupted run stays in scope even when
	// no item is waiting on its day anymore.
	for key, progress := range state.Items {
		if !isDayKey(key) || progress.Failed || progress.Stage != StageNotify {
			continue
		}
		inScope[key[len(dayKeyPrefix):]] = true
	}

	days := make([]string, 0, len(inScope))
	for day := range inScope {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.summarizeDay(ctx, state, report, day, byDay[day]); err != nil {
			return err
		}
	}
	return nil
}

// refreshDayBudgets resets the day-level failure flag and stage budgets at
// the start of every invocation, so a day that could not summarize or
// deliver is retried once the fault clears. Item budgets stay persisted.
func refreshDayBudgets(state *runstate.RunState) {
	for key, progress := range state.Items {
		if !isDayKey(key) || progress.Stage == StageCompleted {
			continue
		}
		progress.Failed = false
		delete(progress.Attempts, StageSummarize)
		delete(progress.Attempts, StageNotify)
	}
}

func (r *Runner) summarizeDay(ctx context.Context, state *runstate.RunState, report *RunReport, day string, contributors []*runstate.ItemProgress) error {
	logger := r.logger.With(
		logging.String(logging.FieldRunID, state.RunID),
		logging.String(logging.FieldDay, day))

	// A day record left at the notify stage means the entry was persisted
	// but never delivered; only the send is outstanding.
	if pending, ok := state.Items[dayKey(day)]; ok && !pending.Failed && pending.Stage == StageNotify {
		if err := r.completeContributors(ctx, state, contributors, pending.EntryID, logger); err != nil {
			return err
		}
		notified := r.deliverEntry(ctx, state, pending, day, pending.EntryID, logger)
		report.Entries = append(report.Entries, EntryOutcome{
			Day: day, EntryID: pending.EntryID, Items: len(contributors), Notified: notified,
		})
		return nil
	}

	// A scheduled entry already on record absorbs late arrivals for its day
	// without a second summarize; the unique index forbids a duplicate.
	existing, err := r.store.ScheduledEntryByDay(ctx, day)
	if err != nil {
		return fmt.Errorf("look up entry for %s: %w", day, err)
	}
	if existing != nil {
		logger.Info("attaching items to existing journal entry",
			logging.Int64("entry_id", existing.ID),
			logging.Int("items", len(contributors)))
		if err := r.completeContributors(ctx, state, contributors, existing.ID, logger); err != nil {
			return err
		}
		report.Entries = append(report.Entries, EntryOutcome{
			Day: day, EntryID: existing.ID, Items: len(contributors),
		})
		return nil
	}

	optimized, err := r.store.OptimizedByDay(ctx, day)
	if err != nil {
		return fmt.Errorf("load optimized passages for %s: %w", day, err)
	}
	passages := collectPassages(optimized)
	if passages == "" {
		// Nothing usable for the day: no entry and no delivery.
		logger.Info("no optimized content for day, skipping entry")
		return nil
	}

	dayProgress := state.Item(dayKey(day), "", StageSummarize)
	dayProgress.Day = day
	if dayProgress.Failed {
		return nil
	}

	var entryID int64
	err = r.runStage(ctx, state, dayProgress, StageSummarize, func(callCtx context.Context) error {
		completion, err := r.deps.Completer.Complete(callCtx, r.summarizeTemplate(), map[string]string{
			"day":      day,
			"passages": passages,
		})
		if err != nil {
			return err
		}
		metadata, err := encodeEntryMetadata(completion)
		if err != nil {
			return err
		}
		entryID, err = r.store.InsertEntry(callCtx, &journal.Entry{
			Day:          day,
			Content:      completion.Content,
			MetadataJSON: metadata,
			Template:     "daily",
			Origin:       journal.OriginScheduled,
		})
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		dayProgress.Failed = true
		dayProgress.LastError = err.Error()
		// The failure is visible on every contributing item, and the next
		// invocation retries the day with a fresh budget.
		for _, progress := range contributors {
			progress.LastError = err.Error()
		}
		if saveErr := r.states.Save(ctx, state); saveErr != nil {
			logger.Error("save run state", logging.Error(saveErr))
		}
		logger.Warn("summarize failed for day", logging.Error(err))
		if notifyErr := r.deps.Notifier.NotifyError(ctx, err, "summarize "+day); notifyErr != nil {
			logger.Warn("error notification failed", logging.Error(notifyErr))
		}
		return nil
	}
	dayProgress.EntryID = entryID
	r.advance(ctx, state, dayProgress, StageNotify, logger)

	if err := r.completeContributors(ctx, state, contributors, entryID, logger); err != nil {
		return err
	}

	notified := r.deliverEntry(ctx, state, dayProgress, day, entryID, logger)
	report.Entries = append(report.Entries, EntryOutcome{
		Day: day, EntryID: entryID, Items: len(contributors), Notified: notified,
	})
	return nil
}

// completeContributors records registry completion for every contributing
// item and releases its source recording. Called only after the journal
// entry for the day is durably persisted.
func (r *Runner) completeContributors(ctx context.Context, state *runstate.RunState, contributors []*runstate.ItemProgress, entryID int64, logger *slog.Logger) error {
	for _, progress := range contributors {
		if progress.Stage == StageCompleted {
			continue
		}
		if err := r.registry.MarkCompleted(ctx, progress.Identity, progress.Filename, progress.TranscriptionID, entryID); err != nil {
			return fmt.Errorf("mark %s completed: %w", progress.Identity, err)
		}
		r.advance(ctx, state, progress, StageCompleted, logger)
		r.cleanupSource(ctx, progress, logger)
	}
	return nil
}

// deliverEntry emails the finished entry. The notify stage has its own
// retry budget on the day record; exhaustion leaves the entry persisted and
// the items completed, with the failure surfaced through the report.
func (r *Runner) deliverEntry(ctx context.Context, state *runstate.RunState, dayProgress *runstate.ItemProgress, day string, entryID int64, logger *slog.Logger) bool {
	if dayProgress.Stage != StageNotify {
		return dayProgress.Stage == StageCompleted
	}
	if !r.deps.Sender.Enabled() {
		r.advance(ctx, state, dayProgress, StageCompleted, logger)
		return false
	}

	entry, err := r.store.EntryByID(ctx, entryID)
	if err != nil || entry == nil {
		logger.Error("load entry for delivery", logging.Error(err))
		return false
	}

	err = r.runStage(ctx, state, dayProgress, StageNotify, func(callCtx context.Context) error {
		return r.deps.Sender.Send(callCtx, mail.Message{
			Subject: "",
			Body:    entry.Content,
			Day:     day,
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		dayProgress.LastError = err.Error()
		if !services.IsTransient(err) {
			// The send is given up; the entry and the completions stand.
			dayProgress.Failed = true
		}
		if saveErr := r.states.Save(ctx, state); saveErr != nil {
			logger.Error("save run state", logging.Error(saveErr))
		}
		logger.Warn("journal delivery failed", logging.Error(err))
		if notifyErr := r.deps.Notifier.NotifyError(ctx, err, "deliver "+day); notifyErr != nil {
			logger.Warn("error notification failed", logging.Error(notifyErr))
		}
		return false
	}

	r.advance(ctx, state, dayProgress, StageCompleted, logger)
	if err := r.deps.Notifier.NotifyJournalDelivered(ctx, day, len(r.cfg.Email.Recipients)); err != nil {
		logger.Warn("delivery notification failed", logging.Error(err))
	}
	return true
}

// collectPassages joins the day's optimized passages in creation order.
func collectPassages(optimized []*journal.Optimized) string {
	var parts []string
	for _, opt := range optimized {
		content := strings.TrimSpace(opt.Content)
		if content == "" {
			continue
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// optimizeOutput is the structured shape the optimize prompt asks for.
type optimizeOutput struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

// parseOptimizeOutput decodes the optimize response. A response that is not
// the requested JSON shape is kept verbatim as the passage content rather
// than failing the item.
func parseOptimizeOutput(raw string) (content, category string) {
	var decoded optimizeOutput
	if err := llm.DecodeLLMJSON(raw, &decoded); err == nil && strings.TrimSpace(decoded.Content) != "" {
		return strings.TrimSpace(decoded.Content), normalizeCategory(decoded.Category)
	}
	return strings.TrimSpace(raw), ""
}

func normalizeCategory(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if len(category) > 64 {
		category = category[:64]
	}
	return category
}

func encodeOptimizeMetadata(category string, completion *llm.Completion) (string, error) {
	payload := map[string]any{
		"model":             completion.Model,
		"prompt_tokens":     completion.Usage.PromptTokens,
		"completion_tokens": completion.Usage.CompletionTokens,
	}
	if category != "" {
		payload["category"] = category
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrTerminal, StageOptimize, "metadata", "encode metadata", err)
	}
	return string(encoded), nil
}

func encodeEntryMetadata(completion *llm.Completion) (string, error) {
	encoded, err := json.Marshal(map[string]any{
		"model":             completion.Model,
		"prompt_tokens":     completion.Usage.PromptTokens,
		"completion_tokens": completion.Usage.CompletionTokens,
	})
	if err != nil {
		return "", services.Wrap(services.ErrTerminal, StageSummarize, "metadata", "encode metadata", err)
	}
	return string(encoded), nil
}
