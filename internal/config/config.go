package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DownloadDir string `toml:"download_dir"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
}

// Drive contains configuration for the cloud storage folder recordings are
// pulled from.
type Drive struct {
	FolderID            string  `toml:"folder_id"`
	AccessToken         string  `toml:"access_token"`
	BaseURL             string  `toml:"base_url"`
	RequestTimeout      int     `toml:"request_timeout"`
	DeleteAfterDownload bool    `toml:"delete_after_download"`
	RequestsPerSecond   float64 `toml:"requests_per_second"`
}

// Transcriber contains configuration for the speech-to-text service.
type Transcriber struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	Model             string  `toml:"model"`
	Language          string  `toml:"language"`
	RequestTimeout    int     `toml:"request_timeout"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// LLM contains shared text-generation connection settings used by the
// optimize, summarize, and report features.
type LLM struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	OptimizeTemplate  string `toml:"optimize_template"`
	SummarizeTemplate string `toml:"summarize_template"`
}

// Email contains configuration for journal delivery.
type Email struct {
	Enabled    bool     `toml:"enabled"`
	SMTPHost   string   `toml:"smtp_host"`
	SMTPPort   int      `toml:"smtp_port"`
	Username   string   `toml:"username"`
	Password   string   `toml:"password"`
	From       string   `toml:"from"`
	Recipients []string `toml:"recipients"`
	Subject    string   `toml:"subject"`
}

// Notifications contains configuration for ntfy push notifications about
// pipeline runs. These are operational events, distinct from the journal
// email itself.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunEvents      bool   `toml:"run_events"`
	Errors         bool   `toml:"errors"`
}

// Scheduler contains the run cadence. RunsPerDay of zero means run once and
// exit.
type Scheduler struct {
	RunsPerDay int `toml:"runs_per_day"`
}

// Workflow contains retry and timeout tuning for pipeline stage calls.
// Delays and timeouts are in seconds.
type Workflow struct {
	StageTimeout   int `toml:"stage_timeout"`
	MaxAttempts    int `toml:"max_attempts"`
	RetryBaseDelay int `toml:"retry_base_delay"`
	RetryMaxDelay  int `toml:"retry_max_delay"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Chronicle.
//
// Configuration sections by subsystem:
//   - Paths: download, state, and log directories
//   - Drive: cloud folder the recordings are acquired from
//   - Transcriber: speech-to-text service settings
//   - LLM: text-generation connection and prompt templates
//   - Email: SMTP delivery of journal entries
//   - Notifications: ntfy push notification settings
//   - Scheduler: pipeline run cadence
//   - Workflow: stage timeouts and retry budgets
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Drive         Drive         `toml:"drive"`
	Transcriber   Transcriber   `toml:"transcriber"`
	LLM           LLM           `toml:"llm"`
	Email         Email         `toml:"email"`
	Notifications Notifications `toml:"notifications"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/chronicle/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("chronicle.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunStatePath returns the file the run-state store persists to. Deleting it
// forces a full fresh discovery on the next run.
func (c *Config) RunStatePath() string {
	return filepath.Join(c.Paths.StateDir, "runstate.json")
}

// StatsPath returns the file cross-run processing statistics persist to.
func (c *Config) StatsPath() string {
	return filepath.Join(c.Paths.StateDir, "stats.json")
}

// LockPath returns the flock file that guards against overlapping runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "chronicle.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains common text-generation settings used across features.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// GetLLM returns the shared text-generation connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
