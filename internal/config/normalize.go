package config

import (
	"fmt"
	"os"
	"strings"

	"chronicle/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDrive()
	c.normalizeTranscriber()
	c.normalizeLLM()
	c.normalizeEmail()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDrive() {
	c.Drive.FolderID = strings.TrimSpace(c.Drive.FolderID)
	c.Drive.BaseURL = strings.TrimRight(strings.TrimSpace(c.Drive.BaseURL), "/")
	if c.Drive.AccessToken == "" {
		c.Drive.AccessToken = strings.TrimSpace(os.Getenv("CHRONICLE_DRIVE_TOKEN"))
	}
	if c.Drive.BaseURL == "" {
		c.Drive.BaseURL = defaultDriveBaseURL
	}
	if c.Drive.RequestTimeout <= 0 {
		c.Drive.RequestTimeout = defaultDriveTimeout
	}
	if c.Drive.RequestsPerSecond <= 0 {
		c.Drive.RequestsPerSecond = defaultDriveRate
	}
}

func (c *Config) normalizeTranscriber() {
	c.Transcriber.BaseURL = strings.TrimSpace(c.Transcriber.BaseURL)
	if c.Transcriber.APIKey == "" {
		c.Transcriber.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	// Users write "english" or "eng" as readily as "en"; the endpoint only
	// understands ISO 639-1.
	if lang := strings.TrimSpace(c.Transcriber.Language); lang != "" {
		if iso := language.ToISO2(lang); iso != "" {
			c.Transcriber.Language = iso
		} else {
			c.Transcriber.Language = strings.ToLower(lang)
		}
	}
	if c.Transcriber.BaseURL == "" {
		c.Transcriber.BaseURL = defaultTranscriberURL
	}
	if c.Transcriber.Model == "" {
		c.Transcriber.Model = defaultTranscriberModel
	}
	if c.Transcriber.RequestTimeout <= 0 {
		c.Transcriber.RequestTimeout = defaultTranscriberTimeout
	}
	if c.Transcriber.RequestsPerSecond <= 0 {
		c.Transcriber.RequestsPerSecond = defaultTranscriberRate
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeEmail() {
	c.Email.SMTPHost = strings.TrimSpace(c.Email.SMTPHost)
	c.Email.From = strings.TrimSpace(c.Email.From)
	if c.Email.SMTPPort <= 0 {
		c.Email.SMTPPort = defaultSMTPPort
	}
	if strings.TrimSpace(c.Email.Subject) == "" {
		c.Email.Subject = defaultEmailSubject
	}
	recipients := c.Email.Recipients[:0]
	for _, addr := range c.Email.Recipients {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	c.Email.Recipients = recipients
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
