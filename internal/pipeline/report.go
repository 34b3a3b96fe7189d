package pipeline

import (
	"sort"
	"strings"
	"time"

	"chronicle/internal/runstate"
)

// ItemOutcome is one item's final position in a run report.
type ItemOutcome struct {
	Identity string
	Filename string
	Stage    string
	Day      string
	Reason   string
}

// EntryOutcome records one journal entry produced or reused during a run.
type EntryOutcome struct {
	Day      string
	EntryID  int64
	Items    int
	Notified bool
}

// RunReport enumerates what a run did: completed, failed, and still-pending
// items with reasons, plus the journal entries written.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Discovered int
	Skipped    int
	Completed  []ItemOutcome
	Failed     []ItemOutcome
	Pending    []ItemOutcome
	Entries    []EntryOutcome
}

// Duration returns the wall-clock span of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Settled reports whether every discovered item reached a terminal state.
// An unsettled run leaves its state file in place for the next resume.
func (r *RunReport) Settled() bool {
	return len(r.Pending) == 0
}

func buildOutcomes(state *runstate.RunState) (completed, failed, pending []ItemOutcome) {
	for key, progress := range state.Items {
		if strings.HasPrefix(key, dayKeyPrefix) {
			// A day record that has not settled keeps the run unsettled, so
			// the state file survives and the next invocation resumes the
			// summarize or the send.
			if !progress.Failed && progress.Stage != StageCompleted {
				pending = append(pending, ItemOutcome{
					Identity: key,
					Stage:    progress.Stage,
					Day:      progress.Day,
					Reason:   progress.LastError,
				})
			}
			continue
		}
		outcome := ItemOutcome{
			Identity: progress.Identity,
			Filename: progress.Filename,
			Stage:    progress.Stage,
			Day:      progress.Day,
			Reason:   progress.LastError,
		}
		switch {
		case progress.Failed:
			failed = append(failed, outcome)
		case progress.Stage == StageCompleted:
			completed = append(completed, outcome)
		default:
			pending = append(pending, outcome)
		}
	}
	sortOutcomes(completed)
	sortOutcomes(failed)
	sortOutcomes(pending)
	return completed, failed, pending
}

func sortOutcomes(outcomes []ItemOutcome) {
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].Identity < outcomes[j].Identity
	})
}
