package engine

import (
	"fmt"
	"time"
)

// Mode is the comparison policy of a run, decided from the loaded store.
type Mode int

const (
	// ColdStart fetches everything and records it without comparing.
	ColdStart Mode = iota + 1
	// Incremental compares every fetched document against the previous run.
	Incremental
)

func (m Mode) String() string {
	switch m {
	case ColdStart:
		return "cold_start"
	case Incremental:
		return "incremental"
	default:
		return "unknown"
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Stage names the per-document step that failed.
type Stage string

const (
	StageResolve     Stage = "resolve"
	StageFetch       Stage = "fetch"
	StageFingerprint Stage = "fingerprint"
	StageRecord      Stage = "record"
	StageRefetch     Stage = "refetch"
	StagePersist     Stage = "persist"
	StageMirror      Stage = "mirror"
)

// DocumentError is a non-fatal failure scoped to one section or document.
type DocumentError struct {
	// Link is the document URL, or the section URL when resolution failed.
	Link       string
	DocumentID string
	Stage      Stage
	Err        error
}

func (e DocumentError) Error() string {
	if e.DocumentID != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Stage, e.DocumentID, e.Link, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Link, e.Err)
}

func (e DocumentError) Unwrap() error {
	return e.Err
}

// RunResult describes one run. Every id list is in discovery order.
type RunResult struct {
	RunID           string
	Target          string
	Mode            Mode
	TotalDiscovered int
	Downloaded      []string
	Changed         []string
	New             []string
	Unchanged       []string
	Skipped         []string
	Errors          []DocumentError
	BytesDownloaded int64
	StartedAt       time.Time
	FinishedAt      time.Time
}

func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *RunResult) addError(link, id string, stage Stage, err error) {
	r.Errors = append(r.Errors, DocumentError{Link: link, DocumentID: id, Stage: stage, Err: err})
}
