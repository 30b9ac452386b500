package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/openmined/docsync/internal/report"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [target...]",
		Short: "Sync targets once and print what changed",
		Long:  "Sync the named targets one after another. Without arguments every configured target is synced.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLogs, err := prepare(cmd)
			if err != nil {
				return err
			}
			defer closeLogs()

			names, err := selectTargets(cfg, args)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			asJSON, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			var failed []error
			summaries := make([]*report.Summary, 0, len(names))
			for _, name := range names {
				if err := cmd.Context().Err(); err != nil {
					return err
				}

				res, err := a.set.Run(cmd.Context(), name)
				summary := report.Summarize(res)
				if err != nil {
					failed = append(failed, fmt.Errorf("%s: %w", name, err))
				} else {
					report.Log(slog.Default(), summary)
				}

				if asJSON {
					summaries = append(summaries, summary)
					continue
				}
				if summary != nil {
					report.Render(out, summary)
				}
				if err != nil {
					fmt.Fprintf(out, "%s %s: %v\n\n", red("FAILED"), name, err)
				}
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(summaries); err != nil {
					return err
				}
			}
			return errors.Join(failed...)
		},
	}
	cmd.Flags().Bool("json", false, "print run summaries as JSON")
	return cmd
}
