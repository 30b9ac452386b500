package report

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/openmined/docsync/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func sampleResult() *engine.RunResult {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &engine.RunResult{
		RunID:           "run-1",
		Target:          "rhel8",
		Mode:            engine.Incremental,
		TotalDiscovered: 4,
		Downloaded:      []string{"a.pdf", "b.pdf", "c.pdf"},
		Changed:         []string{"b.pdf"},
		New:             []string{"c.pdf"},
		Unchanged:       []string{"a.pdf"},
		Skipped:         []string{"https://portal.test/html/x"},
		Errors: []engine.DocumentError{{
			Link:       "https://portal.test/pdf/d.pdf",
			DocumentID: "d.pdf",
			Stage:      engine.StageFetch,
			Err:        errors.New("http status 503"),
		}},
		BytesDownloaded: 2_500_000,
		StartedAt:       start,
		FinishedAt:      start.Add(1500 * time.Millisecond),
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleResult())
	require.NotNil(t, s)

	assert.Equal(t, "incremental", s.Mode)
	assert.Equal(t, 4, s.TotalDiscovered)
	assert.Equal(t, 3, s.Downloaded)
	assert.Equal(t, 1, s.New)
	assert.Equal(t, 1, s.Unchanged)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, []string{"b.pdf"}, s.Changed)
	assert.Equal(t, []string{"fetch d.pdf (https://portal.test/pdf/d.pdf): http status 503"}, s.Errors)
	assert.Equal(t, "2.5 MB", s.Size)
	assert.Equal(t, "1.5s", s.Duration)

	assert.Nil(t, Summarize(nil))
}

func TestSummarize_EmptyListsAreNotNil(t *testing.T) {
	s := Summarize(&engine.RunResult{Mode: engine.ColdStart})
	assert.NotNil(t, s.Changed)
	assert.NotNil(t, s.Errors)
	assert.Equal(t, "0s", s.Duration)
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	Log(logger, Summarize(sampleResult()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `msg="sync summary"`)
	assert.Contains(t, lines[0], "changed=1")
	assert.Contains(t, lines[1], `documents=b.pdf`)
	assert.Contains(t, lines[2], "level=ERROR")

	buf.Reset()
	Log(logger, Summarize(&engine.RunResult{Mode: engine.Incremental}))
	assert.Contains(t, buf.String(), `msg="no document changed"`)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Summarize(sampleResult())))

	out := buf.String()
	assert.Contains(t, out, "Target rhel8 (incremental)")
	assert.Contains(t, out, "3 (2.5 MB)")
	assert.Contains(t, out, "~ b.pdf")
	assert.Contains(t, out, "x fetch d.pdf")
	assert.Contains(t, out, "Skipped")

	buf.Reset()
	require.NoError(t, Render(&buf, Summarize(&engine.RunResult{Mode: engine.ColdStart, Target: "rhel9"})))
	assert.Contains(t, buf.String(), "none")
	assert.NotContains(t, buf.String(), "Errors")
}
