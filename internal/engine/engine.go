// Package engine runs one sync of a documentation target: discover the published
// documents, download them, fingerprint them and compare against the previous run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/discovery"
	"github.com/openmined/docsync/internal/fetcher"
	"github.com/openmined/docsync/internal/store"
)

var (
	ErrDiscoveryFailed = errors.New("engine: discovery failed")
	ErrMissingDeps     = errors.New("engine: session provider and fetcher are required")
)

// Recorder keeps a journal of finished runs.
type Recorder interface {
	Record(ctx context.Context, result *RunResult, runErr error) error
}

// Mirror receives a copy of every new or changed document.
type Mirror interface {
	Put(ctx context.Context, target, documentID, localPath, fingerprint string) error
}

// Deps are the collaborators of an Engine. Recorder and Mirror are optional.
type Deps struct {
	Sessions discovery.SessionProvider
	Fetcher  fetcher.Fetcher
	Recorder Recorder
	Mirror   Mirror
}

type Option func(*Engine)

// WithClock replaces time.Now for observedAt stamps and run timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithWorkers bounds how many documents are resolved and fetched at once.
// Classification and store writes stay sequential in discovery order.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// Engine syncs one target. It holds no per-run state and can be reused for sequential
// runs, but two concurrent runs against the same store lose updates: keeping at most one
// run in flight is the caller's job.
type Engine struct {
	target  config.Target
	deps    Deps
	store   *store.FileStore
	now     func() time.Time
	workers int
}

func New(target *config.Target, deps Deps, opts ...Option) (*Engine, error) {
	if target == nil {
		return nil, errors.New("engine: nil target")
	}
	if deps.Sessions == nil || deps.Fetcher == nil {
		return nil, ErrMissingDeps
	}

	t := *target
	if t.DocumentSelector == "" {
		t.DocumentSelector = discovery.DefaultDocumentSelector
	}
	if t.WriteMode == "" {
		t.WriteMode = config.BatchAtEnd
	}

	e := &Engine{
		target:  t,
		deps:    deps,
		store:   store.NewFileStore(t.StorePath),
		now:     time.Now,
		workers: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Target() config.Target {
	return e.target
}

// DecideMode is ColdStart iff the store is in the canonical empty state.
func DecideMode(s *store.FingerprintStore) Mode {
	if s.IsColdStart() {
		return ColdStart
	}
	return Incremental
}

// Run performs one sync. Per-document failures are collected in the result; run level
// failures (store corrupt, auth required, discovery failed, no sections found, persist
// failed) abort the run and are returned together with the partial result.
func (e *Engine) Run(ctx context.Context) (result *RunResult, err error) {
	result = &RunResult{
		RunID:     uuid.NewString(),
		Target:    e.target.Name,
		StartedAt: e.now().UTC(),
	}
	log := slog.With("target", e.target.Name, "run", result.RunID)

	defer func() {
		result.FinishedAt = e.now().UTC()
		if err != nil {
			log.Error("sync aborted", "mode", result.Mode, "error", err)
		}
		e.record(ctx, log, result, err)
	}()

	// LOAD_STORE
	old, err := e.store.Load()
	if err != nil {
		return result, err
	}

	// MODE
	result.Mode = DecideMode(old)
	if result.Mode == ColdStart {
		log.Warn("sync cold start, store is empty", "store", e.store.Path())
	} else {
		log.Info("sync incremental, comparing fingerprints", "store", e.store.Path(), "records", old.Len())
	}

	// OPEN_SESSION
	session, err := e.deps.Sessions.Open(ctx)
	if err != nil {
		if errors.Is(err, discovery.ErrAuthRequired) || ctx.Err() != nil {
			return result, err
		}
		return result, fmt.Errorf("%w: open session: %w", ErrDiscoveryFailed, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn("sync session close", "error", cerr)
		}
		log.Debug("sync session closed")
	}()

	// DISCOVER
	sections, err := session.Sections(ctx, e.target.URL, e.target.SectionPattern)
	if err != nil {
		if errors.Is(err, discovery.ErrNoSectionsFound) || ctx.Err() != nil {
			return result, err
		}
		return result, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}
	log.Info("sync sections found", "count", len(sections))

	// per link: RESOLVE -> FETCH -> FINGERPRINT -> CLASSIFY -> RECORD
	rs := &runState{
		log:    log,
		result: result,
		old:    old,
		next:   store.New(),
		seen:   make(map[string]struct{}),
	}
	if err := e.process(ctx, session, rs, sections); err != nil {
		return result, err
	}

	if result.TotalDiscovered == 0 {
		return result, fmt.Errorf("%w: %d sections, no documents", discovery.ErrNoSectionsFound, len(sections))
	}

	// PERSIST
	if e.target.WriteMode == config.BatchAtEnd || result.Mode == Incremental {
		if err := e.store.Persist(rs.next); err != nil {
			return result, err
		}
		log.Info("sync store written", "records", rs.next.Len(), "counter", rs.next.Counter())
	}

	if len(result.Changed) > 0 {
		log.Info("sync documents changed", "changed", result.Changed)
	} else if result.Mode == Incremental {
		log.Info("sync no document changed")
	}
	log.Info("sync done",
		"mode", result.Mode,
		"discovered", result.TotalDiscovered,
		"downloaded", len(result.Downloaded),
		"changed", len(result.Changed),
		"errors", len(result.Errors),
	)
	return result, nil
}

func (e *Engine) record(ctx context.Context, log *slog.Logger, result *RunResult, runErr error) {
	if e.deps.Recorder == nil {
		return
	}
	if err := e.deps.Recorder.Record(context.WithoutCancel(ctx), result, runErr); err != nil {
		log.Warn("sync history record", "error", err)
	}
}
