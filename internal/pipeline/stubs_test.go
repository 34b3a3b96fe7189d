package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chronicle/internal/services"
	"chronicle/internal/services/drive"
	"chronicle/internal/services/llm"
	"chronicle/internal/services/mail"
	"chronicle/internal/services/transcriber"
)

type stubSource struct {
	mu          sync.Mutex
	files       []drive.File
	listCalls   int
	fetchCalls  int
	deleteCalls int
	fetchErrs   map[string][]error
}

func (s *stubSource) List(ctx context.Context) ([]drive.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	out := make([]drive.File, len(s.files))
	copy(out, s.files)
	return out, nil
}

func (s *stubSource) Fetch(ctx context.Context, file drive.File, destDir string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	if errs := s.fetchErrs[file.ID]; len(errs) > 0 {
		err := errs[0]
		s.fetchErrs[file.ID] = errs[1:]
		return "", err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, file.Name)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *stubSource) Delete(ctx context.Context, file drive.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	return nil
}

type stubTranscriber struct {
	mu    sync.Mutex
	calls int
	// texts maps audio file basename to transcript text.
	texts map[string]string
	// errs maps basename to a queue of errors consumed before success.
	errs map[string][]error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string) (*transcriber.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	name := filepath.Base(audioPath)
	if errs := s.errs[name]; len(errs) > 0 {
		err := errs[0]
		s.errs[name] = errs[1:]
		return nil, err
	}
	text, ok := s.texts[name]
	if !ok {
		text = "transcript of " + name
	}
	return &transcriber.Result{Text: text, DurationSeconds: 30, Model: "stub-stt"}, nil
}

type stubCompleter struct {
	mu             sync.Mutex
	optimizeCalls  int
	summarizeCalls int
	reportCalls    int
	// summarizeDays records the day variable of every summarize call.
	summarizeDays []string
	// lastPassages holds the passages variable of the last summarize call.
	lastPassages string
	optimizeErrs []error
	summarizeErr error
}

func (s *stubCompleter) Complete(ctx context.Context, template string, vars map[string]string) (*llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case vars["transcription"] != "":
		s.optimizeCalls++
		if len(s.optimizeErrs) > 0 {
			err := s.optimizeErrs[0]
			s.optimizeErrs = s.optimizeErrs[1:]
			return nil, err
		}
		return &llm.Completion{
			Content: `{"content": "polished: ` + vars["transcription"] + `", "category": "daily"}`,
			Model:   "stub-llm",
			Usage:   llm.Usage{PromptTokens: 10, CompletionTokens: 20},
		}, nil
	case vars["passages"] != "":
		s.summarizeCalls++
		if s.summarizeErr != nil {
			return nil, s.summarizeErr
		}
		s.summarizeDays = append(s.summarizeDays, vars["day"])
		s.lastPassages = vars["passages"]
		return &llm.Completion{
			Content: "journal for " + vars["day"],
			Model:   "stub-llm",
			Usage:   llm.Usage{PromptTokens: 30, CompletionTokens: 40},
		}, nil
	default:
		s.reportCalls++
		return &llm.Completion{Content: "digest", Model: "stub-llm"}, nil
	}
}

type stubSender struct {
	mu       sync.Mutex
	enabled  bool
	calls    int
	lastBody string
	err      error
	// onSend, when set, intercepts exactly one send.
	onSend func() error
}

func (s *stubSender) Enabled() bool { return s.enabled }

func (s *stubSender) Send(ctx context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.onSend != nil {
		hook := s.onSend
		s.onSend = nil
		return hook()
	}
	if s.err != nil {
		return s.err
	}
	s.lastBody = msg.Body
	return nil
}

func transientErr(stage string) error {
	return services.Wrap(services.ErrTransient, stage, "call", "stub transient", nil)
}

func terminalErr(stage string) error {
	return services.Wrap(services.ErrTerminal, stage, "call", "stub terminal", nil)
}

func recordingFile(id, name string, day string) drive.File {
	modified, _ := time.Parse("2006-01-02", day)
	return drive.File{
		ID:           id,
		Name:         name,
		MimeType:     "audio/mp4",
		Size:         1024,
		ModifiedTime: modified.Add(9 * time.Hour),
	}
}

func passageCount(passages string) int {
	if strings.TrimSpace(passages) == "" {
		return 0
	}
	return strings.Count(passages, "\n\n---\n\n") + 1
}
