package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"chronicle/internal/journal"
	"chronicle/internal/registry"
)

func newRegistryCommand(ctx *commandContext) *cobra.Command {
	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and manage the processed-file ledger",
	}

	registryCmd.AddCommand(newRegistryListCommand(ctx))
	registryCmd.AddCommand(newRegistryResetCommand(ctx))
	return registryCmd
}

func newRegistryListCommand(ctx *commandContext) *cobra.Command {
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List processed recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			files, err := registry.New(store).List(context.Background())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(files))
			for _, file := range files {
				if failedOnly && file.Status != journal.ProcessedFailed {
					continue
				}
				entryRef := ""
				if file.JournalEntryID != 0 {
					entryRef = strconv.FormatInt(file.JournalEntryID, 10)
				}
				rows = append(rows, []string{
					file.Identity,
					file.Filename,
					string(file.Status),
					entryRef,
					file.Reason,
				})
			}

			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "registry is empty")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"identity", "file", "status", "entry", "reason"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Show only failed recordings")
	return cmd
}

func newRegistryResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <identity>",
		Short: "Forget a recording so the next run reprocesses it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := registry.New(store).Reset(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no registry record for %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registry record for %s removed\n", args[0])
			return nil
		},
	}
}
