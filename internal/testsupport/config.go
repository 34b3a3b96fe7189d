package testsupport

import (
	"path/filepath"
	"testing"

	"chronicle/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Drive.FolderID = "test-folder"
	cfg.Drive.AccessToken = "test-token"
	cfg.Transcriber.APIKey = "test-key"
	cfg.LLM.APIKey = "test-key"
	cfg.Workflow.RetryBaseDelay = 0
	cfg.Workflow.RetryMaxDelay = 0

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithMaxAttempts overrides the per-stage retry budget.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.MaxAttempts = attempts
	}
}

// WithEmail enables SMTP delivery with test settings.
func WithEmail(recipients ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Email.Enabled = true
		cfg.Email.SMTPHost = "smtp.test"
		cfg.Email.From = "journal@test"
		cfg.Email.Recipients = recipients
	}
}
