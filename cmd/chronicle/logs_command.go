package main

import (
	"github.com/spf13/cobra"

	"chronicle/internal/logging"
	"chronicle/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow bool
		lines  int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the pipeline log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return logs.Tail(cmd.Context(), logging.LogFilePath(cfg), cmd.OutOrStdout(), logs.Options{
				Lines:  lines,
				Follow: follow,
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new log lines until interrupted")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	return cmd
}
