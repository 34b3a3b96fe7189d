package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chronicle/internal/config"
	"chronicle/internal/digest"
	"chronicle/internal/journal"
	"chronicle/internal/services/llm"
	"chronicle/internal/services/mail"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var fromFlag string
	var toFlag string
	var dateFlag string
	var templateFile string
	var send bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate an on-demand digest over a date range",
		Long:  "Summarize already-persisted journal data for a date range into a\nnew digest entry, without re-running any processing stages.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			from, to, err := resolveRange(dateFlag, fromFlag, toFlag)
			if err != nil {
				return err
			}

			template := ""
			if templateFile != "" {
				expanded, err := config.ExpandPath(templateFile)
				if err != nil {
					return err
				}
				raw, err := os.ReadFile(expanded)
				if err != nil {
					return fmt.Errorf("read template file: %w", err)
				}
				template = string(raw)
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sender, err := mail.NewSender(cfg.Email)
			if err != nil {
				return err
			}

			service := digest.NewService(store, llm.NewClient(cfg.GetLLM()), sender, logger)

			runCtx, cancel := signalContext()
			defer cancel()

			result, err := service.Generate(runCtx, digest.Request{
				From:     from,
				To:       to,
				Template: template,
				Deliver:  send,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderKeyValues([][2]string{
				{"range", from + " to " + to},
				{"entry", fmt.Sprint(result.Entry.ID)},
				{"source days", fmt.Sprint(result.SourceDays)},
				{"source items", fmt.Sprint(result.SourceItems)},
				{"template", result.TemplateName},
				{"delivered", yesNo(result.Delivered)},
			}))
			fmt.Fprintln(out)
			fmt.Fprintln(out, result.Entry.Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromFlag, "from", "", "Range start day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toFlag, "to", "", "Range end day (YYYY-MM-DD), inclusive")
	cmd.Flags().StringVar(&dateFlag, "date", "", "Single day shorthand for --from/--to")
	cmd.Flags().StringVar(&templateFile, "template-file", "", "File holding a custom report template")
	cmd.Flags().BoolVar(&send, "send", false, "Email the digest after generating it")
	return cmd
}

var nowFunc = time.Now

func resolveRange(date, from, to string) (string, string, error) {
	date = strings.TrimSpace(date)
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)

	if date != "" {
		if from != "" || to != "" {
			return "", "", fmt.Errorf("--date cannot be combined with --from/--to")
		}
		return date, date, nil
	}
	if from == "" && to == "" {
		today := journal.Day(nowFunc())
		return today, today, nil
	}
	if from == "" || to == "" {
		return "", "", fmt.Errorf("--from and --to must be supplied together")
	}
	return from, to, nil
}
