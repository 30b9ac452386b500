// Package history keeps a sqlite journal of sync runs and of what happened to each
// document in them.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/docsync/internal/db"
	"github.com/openmined/docsync/internal/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    target TEXT NOT NULL,
    mode TEXT NOT NULL,
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    discovered INTEGER NOT NULL,
    downloaded INTEGER NOT NULL,
    changed_count INTEGER NOT NULL,
    new_count INTEGER NOT NULL,
    unchanged_count INTEGER NOT NULL,
    skipped_count INTEGER NOT NULL,
    error_count INTEGER NOT NULL,
    bytes INTEGER NOT NULL,
    skipped TEXT NOT NULL DEFAULT '[]', -- json array of section urls
    started_at TEXT NOT NULL, -- fixed width RFC3339, UTC
    finished_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_target_started ON runs(target, started_at);

CREATE TABLE IF NOT EXISTS run_documents (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    document_id TEXT NOT NULL,
    status TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, seq)
);
`

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Document statuses in run_documents.
const (
	DocNew        = "new"
	DocChanged    = "changed"
	DocUnchanged  = "unchanged"
	DocDownloaded = "downloaded"
	DocError      = "error"
)

// timeFormat is fixed width so TEXT ordering matches time ordering.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

var ErrRunNotFound = errors.New("history: run not found")

type RunRecord struct {
	ID         string    `json:"id"`
	Target     string    `json:"target"`
	Mode       string    `json:"mode"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Discovered int       `json:"discovered"`
	Downloaded int       `json:"downloaded"`
	Changed    int       `json:"changed"`
	New        int       `json:"new"`
	Unchanged  int       `json:"unchanged"`
	Skipped    []string  `json:"skipped"`
	Errors     int       `json:"errors"`
	Bytes      int64     `json:"bytes"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type DocumentRecord struct {
	RunID      string `db:"run_id" json:"run_id"`
	Seq        int    `db:"seq" json:"seq"`
	DocumentID string `db:"document_id" json:"document_id"`
	Status     string `db:"status" json:"status"`
	Detail     string `db:"detail" json:"detail,omitempty"`
}

// dbRun is used for scanning, times are stored as TEXT.
type dbRun struct {
	ID         string `db:"id"`
	Target     string `db:"target"`
	Mode       string `db:"mode"`
	Status     string `db:"status"`
	Error      string `db:"error"`
	Discovered int    `db:"discovered"`
	Downloaded int    `db:"downloaded"`
	Changed    int    `db:"changed_count"`
	New        int    `db:"new_count"`
	Unchanged  int    `db:"unchanged_count"`
	SkipCount  int    `db:"skipped_count"`
	Errors     int    `db:"error_count"`
	Bytes      int64  `db:"bytes"`
	Skipped    string `db:"skipped"`
	StartedAt  string `db:"started_at"`
	FinishedAt string `db:"finished_at"`
}

const runColumns = `id, target, mode, status, error, discovered, downloaded, changed_count, new_count,
	unchanged_count, skipped_count, error_count, bytes, skipped, started_at, finished_at`

// History is the run journal. It implements engine.Recorder.
type History struct {
	db     *sqlx.DB
	dbPath string
}

// Open opens or creates the journal at dbPath. db.MemoryPath keeps it in memory.
func Open(dbPath string) (*History, error) {
	database, err := db.NewSqliteDB(db.WithPath(dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("initialize run history schema: %w", err)
	}

	return &History{db: database, dbPath: dbPath}, nil
}

func (h *History) Close() error {
	if err := h.db.Close(); err != nil {
		slog.Error("run history close", "error", err)
		return err
	}
	slog.Debug("run history closed", "path", h.dbPath)
	return nil
}

// Record stores a finished run and the outcome of each of its documents.
func (h *History) Record(ctx context.Context, r *engine.RunResult, runErr error) error {
	if r == nil {
		return fmt.Errorf("cannot record nil run")
	}

	skipped, err := json.Marshal(nonNil(r.Skipped))
	if err != nil {
		return fmt.Errorf("encode skipped sections: %w", err)
	}

	row := dbRun{
		ID:         r.RunID,
		Target:     r.Target,
		Mode:       r.Mode.String(),
		Status:     StatusOK,
		Discovered: r.TotalDiscovered,
		Downloaded: len(r.Downloaded),
		Changed:    len(r.Changed),
		New:        len(r.New),
		Unchanged:  len(r.Unchanged),
		SkipCount:  len(r.Skipped),
		Errors:     len(r.Errors),
		Bytes:      r.BytesDownloaded,
		Skipped:    string(skipped),
		StartedAt:  r.StartedAt.UTC().Format(timeFormat),
		FinishedAt: r.FinishedAt.UTC().Format(timeFormat),
	}
	if runErr != nil {
		row.Status = StatusFailed
		row.Error = runErr.Error()
	}

	tx, err := h.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", r.RunID, err)
	}
	defer tx.Rollback()

	query := `INSERT OR REPLACE INTO runs (` + runColumns + `)
	          VALUES (:id, :target, :mode, :status, :error, :discovered, :downloaded, :changed_count, :new_count,
	          :unchanged_count, :skipped_count, :error_count, :bytes, :skipped, :started_at, :finished_at)`
	if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM run_documents WHERE run_id = ?", r.RunID); err != nil {
		return fmt.Errorf("clear documents of run %s: %w", r.RunID, err)
	}
	for i, doc := range documentRows(r) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO run_documents (run_id, seq, document_id, status, detail) VALUES (?, ?, ?, ?, ?)",
			r.RunID, i, doc.DocumentID, doc.Status, doc.Detail,
		); err != nil {
			return fmt.Errorf("insert document %s of run %s: %w", doc.DocumentID, r.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", r.RunID, err)
	}
	slog.Debug("run history recorded", "run", r.RunID, "target", r.Target, "status", row.Status)
	return nil
}

// Recent returns the latest runs, newest first. An empty target matches every target.
func (h *History) Recent(ctx context.Context, target string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []dbRun
	var err error
	if target == "" {
		err = h.db.SelectContext(ctx, &rows,
			"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	} else {
		err = h.db.SelectContext(ctx, &rows,
			"SELECT "+runColumns+" FROM runs WHERE target = ? ORDER BY started_at DESC, rowid DESC LIMIT ?", target, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	out := make([]RunRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			slog.Error("run history corrupt row", "run", row.ID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns one run.
func (h *History) Get(ctx context.Context, runID string) (*RunRecord, error) {
	var row dbRun
	err := h.db.GetContext(ctx, &row, "SELECT "+runColumns+" FROM runs WHERE id = ?", runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	rec, err := row.toRecord()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Documents returns the documents of a run in processing order.
func (h *History) Documents(ctx context.Context, runID string) ([]DocumentRecord, error) {
	var docs []DocumentRecord
	err := h.db.SelectContext(ctx, &docs,
		"SELECT run_id, seq, document_id, status, detail FROM run_documents WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, fmt.Errorf("query documents of run %s: %w", runID, err)
	}
	return docs, nil
}

// Count returns the number of recorded runs.
func (h *History) Count(ctx context.Context) (int, error) {
	var count int
	if err := h.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM runs"); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return count, nil
}

func (row *dbRun) toRecord() (RunRecord, error) {
	started, err := time.Parse(timeFormat, row.StartedAt)
	if err != nil {
		return RunRecord{}, fmt.Errorf("parse started_at of run %s: %w", row.ID, err)
	}
	finished, err := time.Parse(timeFormat, row.FinishedAt)
	if err != nil {
		return RunRecord{}, fmt.Errorf("parse finished_at of run %s: %w", row.ID, err)
	}

	var skipped []string
	if err := json.Unmarshal([]byte(row.Skipped), &skipped); err != nil {
		return RunRecord{}, fmt.Errorf("decode skipped of run %s: %w", row.ID, err)
	}

	return RunRecord{
		ID:         row.ID,
		Target:     row.Target,
		Mode:       row.Mode,
		Status:     row.Status,
		Error:      row.Error,
		Discovered: row.Discovered,
		Downloaded: row.Downloaded,
		Changed:    row.Changed,
		New:        row.New,
		Unchanged:  row.Unchanged,
		Skipped:    nonNil(skipped),
		Errors:     row.Errors,
		Bytes:      row.Bytes,
		StartedAt:  started,
		FinishedAt: finished,
	}, nil
}

// documentRows lists downloaded documents in order with their classification, then the
// per-document errors.
func documentRows(r *engine.RunResult) []DocumentRecord {
	status := make(map[string]string, len(r.Downloaded))
	for _, id := range r.New {
		status[id] = DocNew
	}
	for _, id := range r.Unchanged {
		status[id] = DocUnchanged
	}
	for _, id := range r.Changed {
		status[id] = DocChanged
	}

	rows := make([]DocumentRecord, 0, len(r.Downloaded)+len(r.Errors))
	for _, id := range r.Downloaded {
		s, ok := status[id]
		if !ok {
			s = DocDownloaded
		}
		rows = append(rows, DocumentRecord{DocumentID: id, Status: s})
	}
	for _, e := range r.Errors {
		id := e.DocumentID
		if id == "" {
			id = e.Link
		}
		rows = append(rows, DocumentRecord{DocumentID: id, Status: DocError, Detail: e.Error()})
	}
	return rows
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
