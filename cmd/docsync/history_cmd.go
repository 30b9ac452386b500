package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/openmined/docsync/internal/history"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [target]",
		Short: "List recent sync runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLogs, err := prepare(cmd)
			if err != nil {
				return err
			}
			defer closeLogs()

			if cfg.HistoryDB == "" {
				return errors.New("run history is disabled, set `history_db` or --history-db")
			}

			target := ""
			if len(args) == 1 {
				if _, err := selectTargets(cfg, args); err != nil {
					return err
				}
				target = args[0]
			}
			limit, _ := cmd.Flags().GetInt("limit")

			h, err := history.Open(cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer h.Close()

			runs, err := h.Recent(cmd.Context(), target, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}

			return writeRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "number of runs to show")
	return cmd
}

// writeRuns prints runs as a table. Rows are aligned as plain text and coloured afterwards,
// since tabwriter counts escape sequences as cell width.
func writeRuns(w io.Writer, runs []history.RunRecord) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tTARGET\tMODE\tSTATUS\tDOCS\tNEW\tCHANGED\tERRORS\tSIZE\tRUN")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			humanize.Time(r.StartedAt), r.Target, r.Mode, r.Status,
			r.Downloaded, r.New, r.Changed, r.Errors,
			humanize.Bytes(uint64(max(r.Bytes, 0))), r.ID,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	fmt.Fprintln(w, lines[0])
	for i, r := range runs {
		paint := green
		if r.Status != history.StatusOK {
			paint = red
		}
		fmt.Fprintln(w, paint(lines[i+1]))
	}
	return nil
}
