package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"chronicle/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set drive.folder_id, drive.access_token, and the API keys before running Chronicle.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues([][2]string{
				{"download dir", cfg.Paths.DownloadDir},
				{"state dir", cfg.Paths.StateDir},
				{"log dir", cfg.Paths.LogDir},
				{"drive folder", cfg.Drive.FolderID},
				{"delete after download", yesNo(cfg.Drive.DeleteAfterDownload)},
				{"transcriber model", cfg.Transcriber.Model},
				{"llm model", cfg.LLM.Model},
				{"email delivery", yesNo(cfg.Email.Enabled)},
				{"recipients", strconv.Itoa(len(cfg.Email.Recipients))},
				{"ntfy topic", cfg.Notifications.NtfyTopic},
				{"runs per day", strconv.Itoa(cfg.Scheduler.RunsPerDay)},
				{"stage timeout (s)", strconv.Itoa(cfg.Workflow.StageTimeout)},
				{"max attempts", strconv.Itoa(cfg.Workflow.MaxAttempts)},
				{"log format", cfg.Logging.Format},
				{"log level", cfg.Logging.Level},
			}))
			return nil
		},
	}
}
