package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"chronicle/internal/config"
	"chronicle/internal/journal"
	"chronicle/internal/logging"
	"chronicle/internal/notifications"
	"chronicle/internal/pipeline"
	"chronicle/internal/runstate"
	"chronicle/internal/services/drive"
	"chronicle/internal/services/llm"
	"chronicle/internal/services/mail"
	"chronicle/internal/services/transcriber"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// openStore opens the journal database; the caller owns Close.
func (c *commandContext) openStore() (*journal.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return journal.Open(cfg)
}

// buildRunner constructs the pipeline runner with real stage clients.
func (c *commandContext) buildRunner(store *journal.Store) (*pipeline.Runner, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	source, err := drive.NewClient(cfg.Drive)
	if err != nil {
		return nil, fmt.Errorf("drive client: %w", err)
	}
	stt, err := transcriber.NewClient(cfg.Transcriber)
	if err != nil {
		return nil, fmt.Errorf("transcriber client: %w", err)
	}
	sender, err := mail.NewSender(cfg.Email)
	if err != nil {
		return nil, fmt.Errorf("mail sender: %w", err)
	}

	deps := pipeline.Deps{
		Source:      source,
		Transcriber: stt,
		Completer:   llm.NewClient(cfg.GetLLM()),
		Sender:      sender,
		Notifier:    notifications.NewService(cfg),
	}
	states := runstate.NewFileStore(cfg.RunStatePath())
	return pipeline.NewRunner(cfg, logger, store, states, deps), nil
}

// signalContext cancels on SIGINT/SIGTERM for cooperative shutdown.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
