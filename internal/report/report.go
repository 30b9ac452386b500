// Package report turns a finished run into log lines, API payloads and CLI output.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/openmined/docsync/internal/engine"
)

// Summary is the serializable projection of an engine.RunResult.
type Summary struct {
	RunID           string    `json:"run_id"`
	Target          string    `json:"target"`
	Mode            string    `json:"mode"`
	TotalDiscovered int       `json:"total_discovered"`
	Downloaded      int       `json:"downloaded"`
	New             int       `json:"new"`
	Unchanged       int       `json:"unchanged"`
	Skipped         int       `json:"skipped"`
	Changed         []string  `json:"changed"`
	Errors          []string  `json:"errors"`
	Bytes           int64     `json:"bytes"`
	Size            string    `json:"size"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Duration        string    `json:"duration"`
}

func Summarize(r *engine.RunResult) *Summary {
	if r == nil {
		return nil
	}

	s := &Summary{
		RunID:           r.RunID,
		Target:          r.Target,
		Mode:            r.Mode.String(),
		TotalDiscovered: r.TotalDiscovered,
		Downloaded:      len(r.Downloaded),
		New:             len(r.New),
		Unchanged:       len(r.Unchanged),
		Skipped:         len(r.Skipped),
		Changed:         append([]string{}, r.Changed...),
		Errors:          make([]string, len(r.Errors)),
		Bytes:           r.BytesDownloaded,
		Size:            humanize.Bytes(uint64(max(r.BytesDownloaded, 0))),
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		Duration:        r.Duration().Round(time.Millisecond).String(),
	}
	for i, e := range r.Errors {
		s.Errors[i] = e.Error()
	}
	return s
}

// Log writes the summary line, the changed documents line and one line per error.
func Log(logger *slog.Logger, s *Summary) {
	if s == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("sync summary",
		"target", s.Target,
		"run", s.RunID,
		"mode", s.Mode,
		"discovered", s.TotalDiscovered,
		"downloaded", s.Downloaded,
		"new", s.New,
		"unchanged", s.Unchanged,
		"skipped", s.Skipped,
		"changed", len(s.Changed),
		"errors", len(s.Errors),
		"size", s.Size,
		"duration", s.Duration,
	)

	if len(s.Changed) > 0 {
		logger.Info("documents changed", "target", s.Target, "documents", strings.Join(s.Changed, ", "))
	} else {
		logger.Info("no document changed", "target", s.Target)
	}

	for _, e := range s.Errors {
		logger.Error("document error", "target", s.Target, "error", e)
	}
}

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

// Render prints the summary for a terminal.
func Render(w io.Writer, s *Summary) error {
	if s == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s)\n", bold("Target"), cyan(s.Target), s.Mode)
	fmt.Fprintf(&b, "  %-12s %s\n", "Run", s.RunID)
	fmt.Fprintf(&b, "  %-12s %s (%s)\n", "Started", s.StartedAt.Local().Format(time.DateTime), humanize.Time(s.StartedAt))
	fmt.Fprintf(&b, "  %-12s %s\n", "Duration", s.Duration)
	fmt.Fprintf(&b, "  %-12s %d\n", "Discovered", s.TotalDiscovered)
	fmt.Fprintf(&b, "  %-12s %d (%s)\n", "Downloaded", s.Downloaded, s.Size)
	fmt.Fprintf(&b, "  %-12s %d\n", "New", s.New)
	fmt.Fprintf(&b, "  %-12s %d\n", "Unchanged", s.Unchanged)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, "  %-12s %d\n", "Skipped", s.Skipped)
	}

	if len(s.Changed) == 0 {
		fmt.Fprintf(&b, "  %-12s %s\n", "Changed", green("none"))
	} else {
		fmt.Fprintf(&b, "  %-12s %s\n", "Changed", yellow(len(s.Changed)))
		for _, id := range s.Changed {
			fmt.Fprintf(&b, "    %s %s\n", yellow("~"), id)
		}
	}

	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "  %-12s %s\n", "Errors", red(len(s.Errors)))
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "    %s %s\n", red("x"), e)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
