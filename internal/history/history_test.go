package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/docsync/internal/db"
	"github.com/openmined/docsync/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func openHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func run(id, target string, started time.Time) *engine.RunResult {
	return &engine.RunResult{
		RunID:           id,
		Target:          target,
		Mode:            engine.Incremental,
		TotalDiscovered: 4,
		Downloaded:      []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"},
		Changed:         []string{"b.pdf"},
		New:             []string{"c.pdf"},
		Unchanged:       []string{"a.pdf"},
		Skipped:         []string{"https://portal.test/html/x"},
		Errors: []engine.DocumentError{
			{Link: "https://portal.test/pdf/d.pdf", DocumentID: "d.pdf", Stage: engine.StageRefetch, Err: errors.New("timeout")},
			{Link: "https://portal.test/html/y", Stage: engine.StageResolve, Err: errors.New("crashed")},
		},
		BytesDownloaded: 1024,
		StartedAt:       started,
		FinishedAt:      started.Add(3 * time.Second),
	}
}

func TestRecordAndGet(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	require.NoError(t, h.Record(ctx, run("r1", "rhel8", t0), nil))

	rec, err := h.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "rhel8", rec.Target)
	assert.Equal(t, "incremental", rec.Mode)
	assert.Equal(t, StatusOK, rec.Status)
	assert.Empty(t, rec.Error)
	assert.Equal(t, 4, rec.Discovered)
	assert.Equal(t, 4, rec.Downloaded)
	assert.Equal(t, 1, rec.Changed)
	assert.Equal(t, 2, rec.Errors)
	assert.Equal(t, int64(1024), rec.Bytes)
	assert.Equal(t, []string{"https://portal.test/html/x"}, rec.Skipped)
	assert.True(t, rec.StartedAt.Equal(t0))
	assert.True(t, rec.FinishedAt.Equal(t0.Add(3*time.Second)))

	_, err = h.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecord_Documents(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()
	require.NoError(t, h.Record(ctx, run("r1", "rhel8", t0), nil))

	docs, err := h.Documents(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, docs, 6)

	statuses := make([]string, len(docs))
	for i, d := range docs {
		statuses[i] = d.DocumentID + "=" + d.Status
	}
	assert.Equal(t, []string{
		"a.pdf=unchanged",
		"b.pdf=changed",
		"c.pdf=new",
		"d.pdf=downloaded",
		"d.pdf=error",
		"https://portal.test/html/y=error",
	}, statuses)
	assert.Contains(t, docs[4].Detail, "timeout")
}

func TestRecord_FailedRun(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	r := &engine.RunResult{RunID: "r2", Target: "rhel9", Mode: engine.ColdStart, StartedAt: t0, FinishedAt: t0}
	require.NoError(t, h.Record(ctx, r, errors.New("discovery: no sections found")))

	rec, err := h.Get(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "discovery: no sections found", rec.Error)
	assert.Equal(t, []string{}, rec.Skipped)
}

func TestRecord_ReplacesSameRun(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	require.NoError(t, h.Record(ctx, run("r1", "rhel8", t0), nil))
	r := run("r1", "rhel8", t0)
	r.Downloaded = []string{"a.pdf"}
	r.Errors = nil
	require.NoError(t, h.Record(ctx, r, nil))

	n, err := h.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	docs, err := h.Documents(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestRecent(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	require.NoError(t, h.Record(ctx, run("r1", "rhel8", t0), nil))
	require.NoError(t, h.Record(ctx, run("r2", "rhel9", t0.Add(time.Minute)), nil))
	require.NoError(t, h.Record(ctx, run("r3", "rhel8", t0.Add(2*time.Minute)), nil))
	// same second, sub second ordering must hold
	require.NoError(t, h.Record(ctx, run("r4", "rhel8", t0.Add(2*time.Minute+500*time.Millisecond)), nil))

	all, err := h.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "r4", all[0].ID)
	assert.Equal(t, "r1", all[3].ID)

	rhel8, err := h.Recent(ctx, "rhel8", 2)
	require.NoError(t, err)
	require.Len(t, rhel8, 2)
	assert.Equal(t, "r4", rhel8[0].ID)
	assert.Equal(t, "r3", rhel8[1].ID)

	none, err := h.Recent(ctx, "rhel7", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpen_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "history.db")
	ctx := context.Background()

	h, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, h.Record(ctx, run("r1", "rhel8", t0), nil))
	require.NoError(t, h.Close())

	h, err = Open(path)
	require.NoError(t, err)
	defer h.Close()
	n, err := h.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHistory_IsRecorder(t *testing.T) {
	var _ engine.Recorder = (*History)(nil)
}
