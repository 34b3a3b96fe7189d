package pipeline_test

import (
	"context"
	"testing"

	"chronicle/internal/config"
	"chronicle/internal/journal"
	"chronicle/internal/pipeline"
	"chronicle/internal/registry"
	"chronicle/internal/runstate"
	"chronicle/internal/testsupport"
)

type runEnv struct {
	cfg         *config.Config
	store       *journal.Store
	states      *runstate.FileStore
	source      *stubSource
	transcriber *stubTranscriber
	completer   *stubCompleter
	sender      *stubSender
	runner      *pipeline.Runner
}

func newRunEnv(t *testing.T, opts ...testsupport.ConfigOption) *runEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)

	env := &runEnv{
		cfg:         cfg,
		store:       store,
		states:      runstate.NewFileStore(cfg.RunStatePath()),
		source:      &stubSource{fetchErrs: map[string][]error{}},
		transcriber: &stubTranscriber{texts: map[string]string{}, errs: map[string][]error{}},
		completer:   &stubCompleter{},
		sender:      &stubSender{enabled: true},
	}
	env.runner = pipeline.NewRunner(cfg, nil, store, env.states, pipeline.Deps{
		Source:      env.source,
		Transcriber: env.transcriber,
		Completer:   env.completer,
		Sender:      env.sender,
	})
	return env
}

func (e *runEnv) run(t *testing.T) *pipeline.RunReport {
	t.Helper()
	report, err := e.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return report
}

func (e *runEnv) mustProcessed(t *testing.T, identity string) *journal.ProcessedFile {
	t.Helper()
	pf, err := e.store.ProcessedFileByIdentity(context.Background(), identity)
	if err != nil {
		t.Fatalf("ProcessedFileByIdentity(%s): %v", identity, err)
	}
	if pf == nil {
		t.Fatalf("no registry record for %s", identity)
	}
	return pf
}

func TestRunTwoItemsSameDayProducesOneEntry(t *testing.T) {
	env := newRunEnv(t)
	env.source.files = append(env.source.files,
		recordingFile("id-a", "rec_2024-05-01_A.m4a", "2024-05-01"),
		recordingFile("id-b", "rec_2024-05-01_B.m4a", "2024-05-01"),
	)

	report := env.run(t)

	if len(report.Completed) != 2 {
		t.Fatalf("expected 2 completed items, got %+v", report)
	}
	if len(report.Failed) != 0 || len(report.Pending) != 0 {
		t.Fatalf("expected clean run, got failed=%v pending=%v", report.Failed, report.Pending)
	}
	if env.completer.summarizeCalls != 1 {
		t.Fatalf("expected exactly one summarize call, got %d", env.completer.summarizeCalls)
	}
	if got := passageCount(env.completer.lastPassages); got != 2 {
		t.Fatalf("expected 2 passages in the aggregate, got %d (%q)", got, env.completer.lastPassages)
	}
	if env.sender.calls != 1 {
		t.Fatalf("expected one delivery, got %d", env.sender.calls)
	}

	entry, err := env.store.ScheduledEntryByDay(context.Background(), "2024-05-01")
	if err != nil {
		t.Fatalf("ScheduledEntryByDay: %v", err)
	}
	if entry == nil {
		t.Fatal("expected a journal entry for 2024-05-01")
	}
	if entry.Content != "journal for 2024-05-01" {
		t.Fatalf("unexpected entry content %q", entry.Content)
	}

	for _, outcome := range report.Completed {
		pf := env.mustProcessed(t, outcome.Identity)
		if pf.Status != journal.ProcessedCompleted {
			t.Fatalf("expected %s completed, got %s", outcome.Identity, pf.Status)
		}
		if pf.JournalEntryID != entry.ID {
			t.Fatalf("expected %s to reference entry %d, got %d", outcome.Identity, entry.ID, pf.JournalEntryID)
		}
	}
}

func TestRerunWithCompletedRegistryIsNoOp(t *testing.T) {
	env := newRunEnv(t)
	env.source.files = append(env.source.files,
		recordingFile("id-a", "morning.m4a", "2024-05-01"),
	)

	env.run(t)

	fetches := env.source.fetchCalls
	transcribes := env.transcriber.calls
	optimizes := env.completer.optimizeCalls
	summaries := env.completer.summarizeCalls

	report := env.run(t)

	if report.Skipped != 1 {
		t.Fatalf("expected the completed item to be skipped, got %+v", report)
	}
	if env.source.fetchCalls != fetches ||
		env.transcriber.calls != transcribes ||
		env.completer.optimizeCalls != optimizes ||
		env.completer.summarizeCalls != summaries {
		t.Fatalf("expected zero stage calls on re-run: fetch %d->%d transcribe %d->%d optimize %d->%d summarize %d->%d",
			fetches, env.source.fetchCalls,
			transcribes, env.transcriber.calls,
			optimizes, env.completer.optimizeCalls,
			summaries, env.completer.summarizeCalls)
	}
}

func TestResumeSkipsFinishedStages(t *testing.T) {
	env := newRunEnv(t)
	file := recordingFile("id-a", "evening.m4a", "2024-05-02")
	env.source.files = append(env.source.files, file)
	identity := registry.Identity(file.Name, file.ID)

	audioPath := env.cfg.Paths.DownloadDir + "/evening.m4a"
	testsupport.WriteFile(t, audioPath, "audio")
	trID := testsupport.NewTranscription(t, env.store, identity, "2024-05-02", "evening words")

	// State as left by a process killed after transcribe durably recorded.
	state := runstate.New("resume-run")
	progress := state.Item(identity, file.Name, pipeline.StageOptimize)
	progress.RemoteID = file.ID
	progress.LocalPath = audioPath
	progress.TranscriptionID = trID
	progress.Day = "2024-05-02"
	if err := env.states.Save(context.Background(), state); err != nil {
		t.Fatalf("seed run state: %v", err)
	}

	report := env.run(t)

	if report.RunID != "resume-run" {
		t.Fatalf("expected resumed run id, got %s", report.RunID)
	}
	if env.source.fetchCalls != 0 {
		t.Fatalf("acquire must not re-run on resume, got %d fetches", env.source.fetchCalls)
	}
	if env.transcriber.calls != 0 {
		t.Fatalf("transcribe must not re-run on resume, got %d calls", env.transcriber.calls)
	}
	if env.completer.optimizeCalls != 1 || env.completer.summarizeCalls != 1 {
		t.Fatalf("expected resume at optimize, got optimize=%d summarize=%d",
			env.completer.optimizeCalls, env.completer.summarizeCalls)
	}
	pf := env.mustProcessed(t, identity)
	if pf.Status != journal.ProcessedCompleted {
		t.Fatalf("expected completion after resume, got %s", pf.Status)
	}
}

func TestTerminalFailureDoesNotBlockSiblings(t *testing.T) {
	env := newRunEnv(t)
	env.source.files = append(env.source.files,
		recordingFile("id-a", "bad.m4a", "2024-05-03"),
		recordingFile("id-b", "good-one.m4a", "2024-05-03"),
		recordingFile("id-c", "good-two.m4a", "2024-05-03"),
	)
	env.transcriber.errs["bad.m4a"] = []error{terminalErr("transcribe")}

	report := env.run(t)

	if len(report.Failed) != 1 || report.Failed[0].Filename != "bad.m4a" {
		t.Fatalf("expected exactly bad.m4a to fail, got %+v", report.Failed)
	}
	if len(report.Completed) != 2 {
		t.Fatalf("expected siblings to complete, got %+v", report.Completed)
	}
	if env.completer.summarizeCalls != 1 {
		t.Fatalf("expected one summarize for the day, got %d", env.completer.summarizeCalls)
	}

	badIdentity := report.Failed[0].Identity
	pf := env.mustProcessed(t, badIdentity)
	if pf.Status != journal.ProcessedFailed {
		t.Fatalf("expected failed registry status, got %s", pf.Status)
	}
	for _, outcome := range report.Completed {
		if env.mustProcessed(t, outcome.Identity).Status != journal.ProcessedCompleted {
			t.Fatalf("sibling %s not completed", outcome.Identity)
		}
	}
}

func TestTransientFailureRetriesWithinBudget(t *testing.T) {
	env := newRunEnv(t, testsupport.WithMaxAttempts(4))
	env.source.files = append(env.source.files,
		recordingFile("id-a", "flaky.m4a", "2024-05-04"),
	)
	env.transcriber.errs["flaky.m4a"] = []error{
		transientErr("transcribe"),
		transientErr("transcribe"),
	}

	report := env.run(t)

	if len(report.Completed) != 1 {
		t.Fatalf("expected item to complete after retries, got %+v", report)
	}
	if env.transcriber.calls != 3 {
		t.Fatalf("expected 3 transcribe attempts, got %d", env.transcriber.calls)
	}

	attempts, err := env.store.AttemptsForRun(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("AttemptsForRun: %v", err)
	}
	var transientRows, successRows int
	for _, attempt := range attempts {
		if attempt.Stage != pipeline.StageTranscribe {
			continue
		}
		switch attempt.Outcome {
		case journal.AttemptTransient:
			transientRows++
		case journal.AttemptSucceeded:
			successRows++
		}
	}
	if transientRows != 2 || successRows != 1 {
		t.Fatalf("expected 2 transient + 1 success attempt rows, got %d/%d", transientRows, successRows)
	}
}

func TestRetryBudgetExhaustionFailsItem(t *testing.T) {
	env := newRunEnv(t, testsupport.WithMaxAttempts(2))
	env.source.files = append(env.source.files,
		recordingFile("id-a", "always-down.m4a", "2024-05-05"),
	)
	env.transcriber.errs["always-down.m4a"] = []error{
		transientErr("transcribe"),
		transientErr("transcribe"),
		transientErr("transcribe"),
	}

	report := env.run(t)

	if len(report.Failed) != 1 {
		t.Fatalf("expected item to fail after budget, got %+v", report)
	}
	if env.transcriber.calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", env.transcriber.calls)
	}
	if env.completer.summarizeCalls != 0 {
		t.Fatalf("no summarize expected for an empty day, got %d", env.completer.summarizeCalls)
	}
}

func TestEmptyTranscriptionCompletesWithoutEntry(t *testing.T) {
	env := newRunEnv(t)
	env.source.files = append(env.source.files,
		recordingFile("id-a", "silence.m4a", "2024-05-06"),
	)
	env.transcriber.texts["silence.m4a"] = ""

	report := env.run(t)

	if len(report.Completed) != 1 {
		t.Fatalf("expected silent recording to complete, got %+v", report)
	}
	if env.completer.optimizeCalls != 0 || env.completer.summarizeCalls != 0 {
		t.Fatalf("no text-generation calls expected, got optimize=%d summarize=%d",
			env.completer.optimizeCalls, env.completer.summarizeCalls)
	}
	entry, err := env.store.ScheduledEntryByDay(context.Background(), "2024-05-06")
	if err != nil {
		t.Fatalf("ScheduledEntryByDay: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected no entry for an empty day, got %+v", entry)
	}
	pf := env.mustProcessed(t, report.Completed[0].Identity)
	if pf.Status != journal.ProcessedCompleted || pf.JournalEntryID != 0 {
		t.Fatalf("expected completion without an entry ref, got %+v", pf)
	}
}

func TestItemsAcrossDaysSummarizePerDay(t *testing.T) {
	env := newRunEnv(t)
	env.source.files = append(env.source.files,
		recordingFile("id-a", "monday.m4a", "2024-05-06"),
		recordingFile("id-b", "tuesday.m4a", "2024-05-07"),
	)

	report := env.run(t)

	if env.completer.summarizeCalls != 2 {
		t.Fatalf("expected one summarize per day, got %d", env.completer.summarizeCalls)
	}
	if len(report.Entries) != 2 {
		t.Fatalf("expected two entries, got %+v", report.Entries)
	}
	days := map[string]bool{}
	for _, day := range env.completer.summarizeDays {
		days[day] = true
	}
	if !days["2024-05-06"] || !days["2024-05-07"] {
		t.Fatalf("unexpected summarize days %v", env.completer.summarizeDays)
	}
}

func TestDeliveryFailureKeepsCompletion(t *testing.T) {
	env := newRunEnv(t, testsupport.WithMaxAttempts(1))
	env.source.files = append(env.source.files,
		recordingFile("id-a", "note.m4a", "2024-05-08"),
	)
	env.sender.err = terminalErr("notify")

	report := env.run(t)

	if len(report.Completed) != 1 {
		t.Fatalf("expected item completion despite delivery failure, got %+v", report)
	}
	if len(report.Entries) != 1 || report.Entries[0].Notified {
		t.Fatalf("expected unnotified entry, got %+v", report.Entries)
	}
	entry, err := env.store.ScheduledEntryByDay(context.Background(), "2024-05-08")
	if err != nil || entry == nil {
		t.Fatalf("expected persisted entry, got %v err=%v", entry, err)
	}
	pf := env.mustProcessed(t, report.Completed[0].Identity)
	if pf.Status != journal.ProcessedCompleted {
		t.Fatalf("delivery failure must not roll back completion, got %s", pf.Status)
	}
}

func TestLateItemAttachesToExistingEntry(t *testing.T) {
	env := newRunEnv(t)
	existingID, err := env.store.InsertEntry(context.Background(), &journal.Entry{
		Day:     "2024-05-09",
		Content: "already written",
		Origin:  journal.OriginScheduled,
	})
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	env.source.files = append(env.source.files,
		recordingFile("id-late", "late.m4a", "2024-05-09"),
	)

	report := env.run(t)

	if env.completer.summarizeCalls != 0 {
		t.Fatalf("no second summarize expected for a day with an entry, got %d", env.completer.summarizeCalls)
	}
	if len(report.Completed) != 1 {
		t.Fatalf("expected late item to complete, got %+v", report)
	}
	pf := env.mustProcessed(t, report.Completed[0].Identity)
	if pf.JournalEntryID != existingID {
		t.Fatalf("expected attachment to entry %d, got %d", existingID, pf.JournalEntryID)
	}
}

func TestDeleteAfterDownloadWaitsForCompletion(t *testing.T) {
	env := newRunEnv(t, func(cfg *config.Config) {
		cfg.Drive.DeleteAfterDownload = true
	})
	env.source.files = append(env.source.files,
		recordingFile("id-a", "keep-safe.m4a", "2024-05-10"),
		recordingFile("id-b", "broken.m4a", "2024-05-10"),
	)
	env.transcriber.errs["broken.m4a"] = []error{terminalErr("transcribe")}

	env.run(t)

	// Only the completed recording may be deleted at the source.
	if env.source.deleteCalls != 1 {
		t.Fatalf("expected exactly one source deletion, got %d", env.source.deleteCalls)
	}
}

func TestResumeDeliversPendingEntry(t *testing.T) {
	env := newRunEnv(t)

	// State as left by a process killed after the entry was persisted but
	// before delivery: the contributor is completed, only the send remains.
	entryID, err := env.store.InsertEntry(context.Background(), &journal.Entry{
		Day:     "2024-05-12",
		Content: "journal for 2024-05-12",
		Origin:  journal.OriginScheduled,
	})
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	state := runstate.New("interrupted-run")
	day := state.Item("day:2024-05-12", "", pipeline.StageNotify)
	day.Day = "2024-05-12"
	day.EntryID = entryID
	if err := env.states.Save(context.Background(), state); err != nil {
		t.Fatalf("seed run state: %v", err)
	}

	report := env.run(t)

	if env.sender.calls != 1 {
		t.Fatalf("expected the resumed run to deliver the pending entry, got %d sends", env.sender.calls)
	}
	if env.sender.lastBody != "journal for 2024-05-12" {
		t.Fatalf("unexpected delivery body %q", env.sender.lastBody)
	}
	if env.completer.summarizeCalls != 0 {
		t.Fatalf("no re-summarize expected for a persisted entry, got %d", env.completer.summarizeCalls)
	}
	if len(report.Entries) != 1 || !report.Entries[0].Notified || report.Entries[0].EntryID != entryID {
		t.Fatalf("expected a notified entry outcome, got %+v", report.Entries)
	}
	loaded, err := env.states.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected cleared run state after delivery, got %+v", loaded)
	}
}

func TestInterruptedDeliveryResumesNextRun(t *testing.T) {
	env := newRunEnv(t)
	env.source.files = append(env.source.files,
		recordingFile("id-a", "cutoff.m4a", "2024-05-13"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.sender.onSend = func() error {
		cancel()
		return ctx.Err()
	}

	if _, err := env.runner.Run(ctx); err == nil {
		t.Fatal("expected the interrupted run to report cancellation")
	}

	state, err := env.states.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state == nil {
		t.Fatal("expected the state file to survive an undelivered entry")
	}

	report := env.run(t)

	if env.sender.calls != 2 {
		t.Fatalf("expected the next run to retry delivery, got %d sends", env.sender.calls)
	}
	if env.completer.summarizeCalls != 1 {
		t.Fatalf("expected no re-summarize on delivery resume, got %d", env.completer.summarizeCalls)
	}
	if len(report.Entries) != 1 || !report.Entries[0].Notified {
		t.Fatalf("expected a notified entry outcome, got %+v", report.Entries)
	}
	loaded, err := env.states.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected cleared run state after delivery, got %+v", loaded)
	}
}

func TestSummarizeRetriesAfterDayFailure(t *testing.T) {
	env := newRunEnv(t, testsupport.WithMaxAttempts(1))
	env.source.files = append(env.source.files,
		recordingFile("id-a", "stuck.m4a", "2024-05-14"),
	)
	env.completer.summarizeErr = terminalErr("summarize")

	first := env.run(t)

	if len(first.Pending) != 1 {
		t.Fatalf("expected the item to stay pending after the day failed, got %+v", first)
	}
	if first.Pending[0].Reason == "" {
		t.Fatalf("expected a recorded failure reason, got %+v", first.Pending[0])
	}
	state, err := env.states.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state == nil {
		t.Fatal("expected the state file to survive a failed day")
	}

	// Fault cleared: the next invocation retries the day with a fresh budget.
	env.completer.summarizeErr = nil
	second := env.run(t)

	if env.completer.summarizeCalls != 2 {
		t.Fatalf("expected a second summarize attempt, got %d", env.completer.summarizeCalls)
	}
	if len(second.Completed) != 1 {
		t.Fatalf("expected item completion on retry, got %+v", second)
	}
	entry, err := env.store.ScheduledEntryByDay(context.Background(), "2024-05-14")
	if err != nil || entry == nil {
		t.Fatalf("expected a journal entry after retry, got %v err=%v", entry, err)
	}
	pf := env.mustProcessed(t, second.Completed[0].Identity)
	if pf.Status != journal.ProcessedCompleted || pf.JournalEntryID != entry.ID {
		t.Fatalf("expected completion referencing entry %d, got %+v", entry.ID, pf)
	}
	loaded, err := env.states.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected cleared run state after retry, got %+v", loaded)
	}
}

func TestRunStateClearedOnSettledRun(t *testing.T) {
	env := newRunEnv(t)
	env.source.files = append(env.source.files,
		recordingFile("id-a", "done.m4a", "2024-05-11"),
	)

	env.run(t)

	state, err := env.states.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state != nil {
		t.Fatalf("expected cleared run state after settled run, got %+v", state)
	}
}
