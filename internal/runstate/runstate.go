// Package runstate persists in-flight pipeline progress so an interrupted
// run resumes where it stopped instead of repeating completed stages.
//
// The default implementation is a single JSON file written atomically after
// every stage transition. The Store interface keeps the orchestrator
// decoupled from the medium so a table-backed implementation can be swapped
// in without touching orchestrator logic. Deleting the file is the
// documented operator escape hatch: the next run starts from a full fresh
// discovery.
package runstate

import (
	"context"
	"time"
)

// ItemProgress captures where one item stands inside a run.
type ItemProgress struct {
	Identity string `json:"identity"`
	Filename string `json:"filename"`
	RemoteID string `json:"remote_id,omitempty"`
	// Stage is the lowest incomplete stage; resume re-enters here.
	Stage string `json:"stage"`
	// Attempts maps stage name to attempts consumed, so a process restart
	// does not reset the retry budget.
	Attempts  map[string]int `json:"attempts,omitempty"`
	LastError string         `json:"last_error,omitempty"`
	Failed    bool           `json:"failed,omitempty"`
	// Carried stage outputs needed to re-enter later stages.
	LocalPath       string `json:"local_path,omitempty"`
	TranscriptionID int64  `json:"transcription_id,omitempty"`
	EntryID         int64  `json:"entry_id,omitempty"`
	Day             string `json:"day,omitempty"`
}

// AttemptCount returns the attempts already consumed for a stage.
func (p *ItemProgress) AttemptCount(stage string) int {
	if p == nil || p.Attempts == nil {
		return 0
	}
	return p.Attempts[stage]
}

// RecordAttempt increments the persisted attempt counter for a stage and
// returns the new count.
func (p *ItemProgress) RecordAttempt(stage string) int {
	if p.Attempts == nil {
		p.Attempts = make(map[string]int, 4)
	}
	p.Attempts[stage]++
	return p.Attempts[stage]
}

// RunState is the durable progress map for one run invocation.
type RunState struct {
	RunID     string                   `json:"run_id"`
	StartedAt time.Time                `json:"started_at"`
	Items     map[string]*ItemProgress `json:"items"`
}

// New creates an empty run state for a fresh run.
func New(runID string) *RunState {
	return &RunState{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Items:     make(map[string]*ItemProgress),
	}
}

// Item returns the progress record for an identity, creating it at the given
// stage when absent.
func (s *RunState) Item(identity, filename, stage string) *ItemProgress {
	if s.Items == nil {
		s.Items = make(map[string]*ItemProgress)
	}
	if progress, ok := s.Items[identity]; ok {
		return progress
	}
	progress := &ItemProgress{Identity: identity, Filename: filename, Stage: stage}
	s.Items[identity] = progress
	return progress
}

// Store is the durability contract for run progress. Save is the unit of
// durability: once Save returns, a crash must not lose the recorded
// transitions.
type Store interface {
	Save(ctx context.Context, state *RunState) error
	// Load returns the interrupted run's state, or nil when no state exists
	// (meaning start fresh).
	Load(ctx context.Context) (*RunState, error)
	Clear(ctx context.Context) error
}
