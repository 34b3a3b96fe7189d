package journal

import (
	"strings"
	"time"
)

// DayFormat is the canonical calendar-day representation used across tables.
const DayFormat = "2006-01-02"

// Day formats a timestamp as the calendar day it belongs to, in UTC.
func Day(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// ParseDay parses a canonical calendar-day string.
func ParseDay(value string) (time.Time, error) {
	return time.Parse(DayFormat, strings.TrimSpace(value))
}

// ProcessedStatus is the terminal registry state of an item identity.
type ProcessedStatus string

const (
	ProcessedCompleted ProcessedStatus = "completed"
	ProcessedFailed    ProcessedStatus = "failed"
)

// EntryOrigin distinguishes scheduled daily entries from on-demand reports.
type EntryOrigin string

const (
	OriginScheduled EntryOrigin = "scheduled"
	OriginOnDemand  EntryOrigin = "ondemand"
)

// AttemptOutcome records how a single stage attempt ended.
type AttemptOutcome string

const (
	AttemptSucceeded AttemptOutcome = "success"
	AttemptTransient AttemptOutcome = "transient"
	AttemptTerminal  AttemptOutcome = "terminal"
)

// Transcription is the raw speech-to-text output for one recording.
type Transcription struct {
	ID              int64
	Identity        string
	Filename        string
	AudioPath       string
	Content         string
	Day             string
	DurationSeconds float64
	Model           string
	CreatedAt       time.Time
}

// Optimized is the structured rewrite of one transcription.
type Optimized struct {
	ID               int64
	TranscriptionID  int64
	Content          string
	MetadataJSON     string
	CategoryID       int64
	Day              string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	CreatedAt        time.Time
}

// Entry is one persisted journal entry, either the daily scheduled one or an
// on-demand report over a date range.
type Entry struct {
	ID           int64
	Day          string
	Content      string
	MetadataJSON string
	Template     string
	Origin       EntryOrigin
	CreatedAt    time.Time
}

// ProcessedFile is the registry row recording the terminal outcome of one
// item identity.
type ProcessedFile struct {
	ID              int64
	Identity        string
	Filename        string
	TranscriptionID int64
	Status          ProcessedStatus
	Reason          string
	JournalEntryID  int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Attempt is one append-only stage attempt record. Retries add rows; nothing
// is ever overwritten.
type Attempt struct {
	ID        int64
	RunID     string
	Identity  string
	Stage     string
	Attempt   int
	Outcome   AttemptOutcome
	Error     string
	CreatedAt time.Time
}
