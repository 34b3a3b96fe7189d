package config

const (
	defaultDownloadDir        = "~/.local/share/chronicle/downloads"
	defaultStateDir           = "~/.local/share/chronicle/state"
	defaultLogDir             = "~/.local/share/chronicle/logs"
	defaultDriveBaseURL       = "https://www.googleapis.com/drive/v3"
	defaultDriveTimeout       = 120
	defaultDriveRate          = 4.0
	defaultTranscriberURL     = "https://api.openai.com/v1/audio/transcriptions"
	defaultTranscriberModel   = "whisper-1"
	defaultTranscriberRate    = 1.0
	defaultTranscriberTimeout = 300
	defaultLLMBaseURL         = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel           = "gpt-4o-mini"
	defaultLLMTimeoutSeconds  = 120
	defaultSMTPPort           = 587
	defaultEmailSubject       = "Daily Journal"
	defaultNotifyTimeout      = 10
	defaultRunsPerDay         = 1
	defaultStageTimeout       = 600
	defaultMaxAttempts        = 4
	defaultRetryBaseDelay     = 2
	defaultRetryMaxDelay      = 60
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
		},
		Drive: Drive{
			BaseURL:           defaultDriveBaseURL,
			RequestTimeout:    defaultDriveTimeout,
			RequestsPerSecond: defaultDriveRate,
		},
		Transcriber: Transcriber{
			BaseURL:           defaultTranscriberURL,
			Model:             defaultTranscriberModel,
			RequestTimeout:    defaultTranscriberTimeout,
			RequestsPerSecond: defaultTranscriberRate,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Email: Email{
			SMTPPort: defaultSMTPPort,
			Subject:  defaultEmailSubject,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunEvents:      true,
			Errors:         true,
		},
		Scheduler: Scheduler{
			RunsPerDay: defaultRunsPerDay,
		},
		Workflow: Workflow{
			StageTimeout:   defaultStageTimeout,
			MaxAttempts:    defaultMaxAttempts,
			RetryBaseDelay: defaultRetryBaseDelay,
			RetryMaxDelay:  defaultRetryMaxDelay,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
