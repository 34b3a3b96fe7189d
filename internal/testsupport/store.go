package testsupport

import (
	"context"
	"testing"

	"chronicle/internal/config"
	"chronicle/internal/journal"
)

// MustOpenStore opens a journal.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *journal.Store {
	t.Helper()

	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTranscription inserts a transcription row for tests and returns its id.
func NewTranscription(t testing.TB, store *journal.Store, identity, day, content string) int64 {
	t.Helper()

	id, err := store.InsertTranscription(context.Background(), &journal.Transcription{
		Identity: identity,
		Filename: identity + ".m4a",
		Content:  content,
		Day:      day,
		Model:    "test-model",
	})
	if err != nil {
		t.Fatalf("store.InsertTranscription: %v", err)
	}
	return id
}

// NewOptimized inserts an optimized passage for tests and returns its id.
func NewOptimized(t testing.TB, store *journal.Store, transcriptionID int64, day, content string) int64 {
	t.Helper()

	id, err := store.InsertOptimized(context.Background(), &journal.Optimized{
		TranscriptionID: transcriptionID,
		Content:         content,
		Day:             day,
		Model:           "test-model",
	})
	if err != nil {
		t.Fatalf("store.InsertOptimized: %v", err)
	}
	return id
}
