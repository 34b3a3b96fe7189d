// Package registry tracks which item identities have completed the full
// pipeline so normal scheduled runs never reprocess them.
//
// The registry is a durable at-most-once completion ledger backed by the
// journal store's processed_files table. Identity computation is
// deterministic: the same source filename (plus optional disambiguating
// suffix) always yields the same identity, so a second discovery of the same
// recording is a duplicate-skip rather than an error.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	"chronicle/internal/journal"
)

var identitySanitizer = regexp.MustCompile(`[^a-z0-9._-]+`)

// Identity derives the stable item identity for a source filename. The
// optional suffix disambiguates sources that share a name (for example two
// folders holding a file called memo.m4a).
func Identity(filename, suffix string) string {
	base := strings.ToLower(strings.TrimSpace(filepath.Base(filename)))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = identitySanitizer.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")
	if base == "" {
		base = "recording"
	}

	sum := sha256.Sum256([]byte(filename + "\x00" + suffix))
	return base + "-" + hex.EncodeToString(sum[:4])
}

// Registry answers completion queries and records terminal outcomes.
type Registry struct {
	store *journal.Store
}

// New wraps a journal store in the registry surface the orchestrator needs.
func New(store *journal.Store) *Registry {
	return &Registry{store: store}
}

// IsCompleted reports whether an identity already completed the full
// pipeline. Failed identities report false so a future run may retry them.
func (r *Registry) IsCompleted(ctx context.Context, identity string) (bool, error) {
	pf, err := r.store.ProcessedFileByIdentity(ctx, identity)
	if err != nil {
		return false, err
	}
	return pf != nil && pf.Status == journal.ProcessedCompleted, nil
}

// MarkCompleted records that an identity finished the pipeline and which
// journal entry its content contributed to. Call this only after the entry
// was durably persisted.
func (r *Registry) MarkCompleted(ctx context.Context, identity, filename string, transcriptionID, entryID int64) error {
	return r.store.UpsertProcessedFile(ctx, &journal.ProcessedFile{
		Identity:        identity,
		Filename:        filename,
		TranscriptionID: transcriptionID,
		Status:          journal.ProcessedCompleted,
		JournalEntryID:  entryID,
	})
}

// MarkFailed records a terminal failure for an identity. The row keeps the
// identity visible to operators while leaving it eligible for a future
// manual retry.
func (r *Registry) MarkFailed(ctx context.Context, identity, filename, reason string) error {
	return r.store.UpsertProcessedFile(ctx, &journal.ProcessedFile{
		Identity: identity,
		Filename: filename,
		Status:   journal.ProcessedFailed,
		Reason:   reason,
	})
}

// List returns every registry row for operator inspection.
func (r *Registry) List(ctx context.Context) ([]*journal.ProcessedFile, error) {
	return r.store.ProcessedFiles(ctx)
}

// Reset removes an identity from the registry so the next run reprocesses it.
func (r *Registry) Reset(ctx context.Context, identity string) (bool, error) {
	return r.store.RemoveProcessedFile(ctx, identity)
}
