package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyRunStarted(context.Background(), "run", 3); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	var captured struct {
		title    string
		tags     string
		priority string
		body     string
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		captured.title = r.Header.Get("Title")
		captured.tags = r.Header.Get("Tags")
		captured.priority = r.Header.Get("Priority")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		captured.body = string(body)
		_ = r.Body.Close()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.RequestTimeout = 5
	cfg.Notifications.RunEvents = true
	cfg.Notifications.Errors = true
	svc := notifications.NewService(&cfg)

	tests := []struct {
		name           string
		notify         func() error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "run started",
			notify: func() error {
				return svc.NotifyRunStarted(context.Background(), "0b3f2c1d-aaaa", 4)
			},
			expectTitle:   "Chronicle - Run Started",
			expectMessage: "Started run 0b3f2c1d with 4 new recordings",
			expectTags:    "chronicle,run,started",
		},
		{
			name: "run completed clean",
			notify: func() error {
				return svc.NotifyRunCompleted(context.Background(), "0b3f2c1d-aaaa", 4, 0, 90*time.Second)
			},
			expectTitle:   "Chronicle - Run Complete",
			expectMessage: "Run 0b3f2c1d: 4 recordings processed in 1m30s",
			expectTags:    "chronicle,run,completed",
		},
		{
			name: "run completed with failures",
			notify: func() error {
				return svc.NotifyRunCompleted(context.Background(), "0b3f2c1d-aaaa", 3, 1, time.Minute)
			},
			expectTitle:   "Chronicle - Run Complete (with errors)",
			expectMessage: "Run 0b3f2c1d: 3 succeeded, 1 failed in 1m0s",
			expectTags:    "chronicle,run,completed",
		},
		{
			name: "item failed",
			notify: func() error {
				return svc.NotifyItemFailed(context.Background(), "morning.m4a", "transcribe", errors.New("http 422"))
			},
			expectTitle:    "Chronicle - Recording Failed",
			expectMessage:  "Gave up on morning.m4a during transcribe: http 422",
			expectTags:     "chronicle,item,failed",
			expectPriority: "high",
		},
		{
			name: "journal delivered",
			notify: func() error {
				return svc.NotifyJournalDelivered(context.Background(), "2026-03-14", 2)
			},
			expectTitle:   "Chronicle - Journal Delivered",
			expectMessage: "Journal entry for 2026-03-14 sent to 2 recipients",
			expectTags:    "chronicle,journal,delivered",
		},
		{
			name: "error",
			notify: func() error {
				return svc.NotifyError(context.Background(), errors.New("state dir unwritable"), "startup")
			},
			expectTitle:    "Chronicle - Error",
			expectMessage:  "Error with startup: state dir unwritable",
			expectTags:     "chronicle,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			captured.title, captured.tags, captured.priority, captured.body = "", "", "", ""
			if err := tc.notify(); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceSuppressesDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.RunEvents = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyRunStarted(context.Background(), "run", 1); err != nil {
		t.Fatalf("expected suppressed run event to return nil, got %v", err)
	}
	if err := svc.NotifyItemFailed(context.Background(), "a.m4a", "optimize", errors.New("boom")); err != nil {
		t.Fatalf("expected suppressed error event to return nil, got %v", err)
	}
}
