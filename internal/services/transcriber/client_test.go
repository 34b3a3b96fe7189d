package transcriber_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"chronicle/internal/config"
	"chronicle/internal/services"
	"chronicle/internal/services/transcriber"
	"chronicle/internal/testsupport"
)

func newTestClient(t *testing.T, language string, handler http.Handler) *transcriber.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := transcriber.NewClient(config.Transcriber{
		APIKey:   "test-key",
		BaseURL:  server.URL,
		Model:    "whisper-1",
		Language: language,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func audioFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "morning.m4a")
	testsupport.WriteFile(t, path, "fake audio bytes")
	return path
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := transcriber.NewClient(config.Transcriber{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestTranscribeSendsMultipartForm(t *testing.T) {
	var gotFields map[string]string
	var gotFilename string
	var gotAudio []byte
	client := newTestClient(t, "en", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		gotFields = map[string]string{}
		for key, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				gotFields[key] = values[0]
			}
		}
		if files := r.MultipartForm.File["file"]; len(files) == 1 {
			gotFilename = files[0].Filename
			f, err := files[0].Open()
			if err == nil {
				gotAudio, _ = io.ReadAll(f)
				f.Close()
			}
		}
		w.Write([]byte(`{"text": "  good morning  ", "language": "english", "duration": 12.5}`))
	}))

	result, err := client.Transcribe(context.Background(), audioFixture(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotFields["model"] != "whisper-1" || gotFields["response_format"] != "verbose_json" || gotFields["language"] != "en" {
		t.Fatalf("unexpected form fields %v", gotFields)
	}
	if gotFilename != "morning.m4a" {
		t.Fatalf("unexpected upload filename %q", gotFilename)
	}
	if string(gotAudio) != "fake audio bytes" {
		t.Fatalf("unexpected upload content %q", gotAudio)
	}
	if result.Text != "good morning" {
		t.Fatalf("expected trimmed transcript, got %q", result.Text)
	}
	if result.Language != "english" || result.DurationSeconds != 12.5 || result.Model != "whisper-1" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTranscribeOmitsLanguageWhenUnset(t *testing.T) {
	client := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		if _, ok := r.MultipartForm.Value["language"]; ok {
			t.Error("language field must be omitted when not configured")
		}
		w.Write([]byte(`{"text": "hello"}`))
	}))

	if _, err := client.Transcribe(context.Background(), audioFixture(t)); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
}

func TestTranscribeEmptyTextIsNotAnError(t *testing.T) {
	client := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "   "}`))
	}))

	result, err := client.Transcribe(context.Background(), audioFixture(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "" {
		t.Fatalf("expected empty transcript, got %q", result.Text)
	}
}

func TestTranscribeMissingFileIsTerminal(t *testing.T) {
	client := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for a missing file")
	}))

	_, err := client.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.m4a"))
	if err == nil || !services.IsTerminal(err) {
		t.Fatalf("expected terminal classification, got %v", err)
	}
}

func TestTranscribeStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusUnauthorized, false},
		{http.StatusRequestEntityTooLarge, false},
		{http.StatusUnsupportedMediaType, false},
		{http.StatusUnprocessableEntity, false},
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusInternalServerError, true},
	}
	for _, tc := range cases {
		client := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		_, err := client.Transcribe(context.Background(), audioFixture(t))
		if err == nil {
			t.Fatalf("status %d: expected an error", tc.status)
		}
		if got := services.IsTransient(err); got != tc.transient {
			t.Errorf("status %d: IsTransient = %v, want %v", tc.status, got, tc.transient)
		}
	}
}
