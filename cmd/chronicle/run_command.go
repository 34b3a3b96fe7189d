package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"chronicle/internal/pipeline"
	"chronicle/internal/scheduler"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		Long:  "Discover new recordings, process them through transcription and\noptimization, compose the day's journal entries, and deliver them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runner, err := ctx.buildRunner(store)
			if err != nil {
				return err
			}

			runCtx, cancel := signalContext()
			defer cancel()

			sched := scheduler.New(cfg, logger, runner.Run)
			report, runErr := sched.RunOnce(runCtx)
			if report != nil {
				fmt.Fprintln(cmd.OutOrStdout(), renderRunReport(report))
			}
			return runErr
		},
	}
}

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the pipeline on the configured cadence",
		Long:  "Keep running scheduled pipeline passes, runs_per_day times per day,\nuntil interrupted. With runs_per_day = 0 this behaves like `run`.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runner, err := ctx.buildRunner(store)
			if err != nil {
				return err
			}

			runCtx, cancel := signalContext()
			defer cancel()

			sched := scheduler.New(cfg, logger, runner.Run)
			return sched.RunForever(runCtx)
		},
	}
}

func renderRunReport(report *pipeline.RunReport) string {
	summary := renderKeyValues([][2]string{
		{"run", report.RunID},
		{"discovered", strconv.Itoa(report.Discovered)},
		{"skipped", strconv.Itoa(report.Skipped)},
		{"completed", strconv.Itoa(len(report.Completed))},
		{"failed", strconv.Itoa(len(report.Failed))},
		{"pending", strconv.Itoa(len(report.Pending))},
		{"entries", strconv.Itoa(len(report.Entries))},
		{"duration", report.Duration().Round(time.Second).String()},
	})

	out := summary
	if len(report.Entries) > 0 {
		rows := make([][]string, 0, len(report.Entries))
		for _, entry := range report.Entries {
			rows = append(rows, []string{
				entry.Day,
				strconv.FormatInt(entry.EntryID, 10),
				strconv.Itoa(entry.Items),
				yesNo(entry.Notified),
			})
		}
		out += "\n" + renderTable(
			[]string{"day", "entry", "items", "delivered"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
		)
	}
	if len(report.Failed) > 0 || len(report.Pending) > 0 {
		rows := make([][]string, 0, len(report.Failed)+len(report.Pending))
		for _, item := range report.Failed {
			rows = append(rows, []string{item.Filename, item.Stage, "failed", item.Reason})
		}
		for _, item := range report.Pending {
			rows = append(rows, []string{item.Filename, item.Stage, "pending", item.Reason})
		}
		out += "\n" + renderTable(
			[]string{"file", "stage", "state", "reason"},
			rows,
			nil,
		)
	}
	return out
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
