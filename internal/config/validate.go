package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. A run never starts with an
// invalid configuration, so prior pipeline state is left untouched.
func (c *Config) Validate() error {
	if err := c.validateDrive(); err != nil {
		return err
	}
	if err := c.validateTranscriber(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateEmail(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDrive() error {
	if c.Drive.FolderID == "" {
		return errors.New("drive.folder_id must be set")
	}
	if c.Drive.AccessToken == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/chronicle/config.toml"
		}
		return fmt.Errorf("drive.access_token is required. Set CHRONICLE_DRIVE_TOKEN env var or edit %s (create with 'chronicle config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateTranscriber() error {
	if c.Transcriber.APIKey == "" {
		return errors.New("transcriber.api_key is required. Set OPENAI_API_KEY env var or edit the config file")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.APIKey == "" {
		return errors.New("llm.api_key is required. Set OPENAI_API_KEY env var or edit the config file")
	}
	return nil
}

func (c *Config) validateEmail() error {
	if !c.Email.Enabled {
		return nil
	}
	if c.Email.SMTPHost == "" {
		return errors.New("email.smtp_host must be set when email.enabled is true")
	}
	if c.Email.From == "" {
		return errors.New("email.from must be set when email.enabled is true")
	}
	if len(c.Email.Recipients) == 0 {
		return errors.New("email.recipients must list at least one address when email.enabled is true")
	}
	for _, addr := range c.Email.Recipients {
		if !strings.Contains(addr, "@") {
			return fmt.Errorf("email.recipients contains invalid address %q", addr)
		}
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.RunsPerDay < 0 {
		return errors.New("scheduler.runs_per_day must be zero or positive (zero runs once and exits)")
	}
	if c.Scheduler.RunsPerDay > 288 {
		return errors.New("scheduler.runs_per_day must not exceed 288 (one run every five minutes)")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.StageTimeout <= 0 {
		return errors.New("workflow.stage_timeout must be positive")
	}
	if c.Workflow.MaxAttempts <= 0 {
		return errors.New("workflow.max_attempts must be positive")
	}
	if c.Workflow.RetryBaseDelay < 0 {
		return errors.New("workflow.retry_base_delay must be zero or positive")
	}
	if c.Workflow.RetryMaxDelay < c.Workflow.RetryBaseDelay {
		return errors.New("workflow.retry_max_delay must be at least retry_base_delay")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
