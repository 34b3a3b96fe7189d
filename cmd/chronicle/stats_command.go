package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"chronicle/internal/runstate"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show processing statistics across runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			stats, err := runstate.LoadStats(cfg.StatsPath())
			if err != nil {
				return err
			}

			lastRun := "never"
			if !stats.LastRunTime.IsZero() {
				lastRun = stats.LastRunTime.Local().Format(time.RFC1123)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues([][2]string{
				{"total runs", strconv.Itoa(stats.TotalRuns)},
				{"successful runs", strconv.Itoa(stats.SuccessfulRuns)},
				{"recordings completed", strconv.Itoa(stats.ItemsCompleted)},
				{"recordings failed", strconv.Itoa(stats.ItemsFailed)},
				{"last run", lastRun},
				{"last run id", stats.LastRunID},
			}))
			return nil
		},
	}
}
