package registry_test

import (
	"context"
	"strings"
	"testing"

	"chronicle/internal/journal"
	"chronicle/internal/registry"
	"chronicle/internal/testsupport"
)

func TestIdentityIsDeterministic(t *testing.T) {
	first := registry.Identity("Morning Walk.m4a", "folder-1")
	second := registry.Identity("Morning Walk.m4a", "folder-1")
	if first != second {
		t.Fatalf("same inputs produced %q and %q", first, second)
	}
	if !strings.HasPrefix(first, "morning_walk-") {
		t.Fatalf("expected sanitized basename prefix, got %q", first)
	}
	parts := strings.Split(first, "-")
	if hash := parts[len(parts)-1]; len(hash) != 8 {
		t.Fatalf("expected an 8 hex char suffix, got %q", first)
	}
}

func TestIdentitySuffixDisambiguates(t *testing.T) {
	a := registry.Identity("memo.m4a", "folder-1")
	b := registry.Identity("memo.m4a", "folder-2")
	if a == b {
		t.Fatalf("different suffixes must yield different identities, both %q", a)
	}
	if !strings.HasPrefix(a, "memo-") || !strings.HasPrefix(b, "memo-") {
		t.Fatalf("expected shared basename prefix, got %q and %q", a, b)
	}
}

func TestIdentitySanitizesHostileNames(t *testing.T) {
	got := registry.Identity("/tmp/../weird  name!!.MP3", "")
	if strings.ContainsAny(got, " !/") {
		t.Fatalf("identity not sanitized: %q", got)
	}
	if got != strings.ToLower(got) {
		t.Fatalf("identity not lowercased: %q", got)
	}

	empty := registry.Identity("!!!.m4a", "")
	if !strings.HasPrefix(empty, "recording-") {
		t.Fatalf("expected fallback basename, got %q", empty)
	}
}

func TestCompletionLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	reg := registry.New(store)
	ctx := context.Background()

	identity := registry.Identity("note.m4a", "id-1")

	done, err := reg.IsCompleted(ctx, identity)
	if err != nil {
		t.Fatalf("IsCompleted: %v", err)
	}
	if done {
		t.Fatal("unknown identity must not report completed")
	}

	if err := reg.MarkFailed(ctx, identity, "note.m4a", "transcribe: service down"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	done, err = reg.IsCompleted(ctx, identity)
	if err != nil {
		t.Fatalf("IsCompleted(failed): %v", err)
	}
	if done {
		t.Fatal("failed identity must stay eligible for retry")
	}

	trID := testsupport.NewTranscription(t, store, identity, "2024-05-01", "note text")
	if err := reg.MarkCompleted(ctx, identity, "note.m4a", trID, 11); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	done, err = reg.IsCompleted(ctx, identity)
	if err != nil {
		t.Fatalf("IsCompleted(completed): %v", err)
	}
	if !done {
		t.Fatal("completed identity must report completed")
	}

	rows, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != journal.ProcessedCompleted || rows[0].JournalEntryID != 11 {
		t.Fatalf("unexpected registry rows %+v", rows)
	}

	removed, err := reg.Reset(ctx, identity)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !removed {
		t.Fatal("expected reset to remove the row")
	}
	done, err = reg.IsCompleted(ctx, identity)
	if err != nil {
		t.Fatalf("IsCompleted(after reset): %v", err)
	}
	if done {
		t.Fatal("reset identity must be reprocessable")
	}
}
