package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/discovery"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/fetcher"
	"github.com/openmined/docsync/internal/history"
	"github.com/openmined/docsync/internal/mirror"
	"github.com/openmined/docsync/internal/server/handlers/trigger"
)

// app wires the configured targets to their collaborators.
type app struct {
	cfg     *config.Config
	set     *engine.Set
	history *history.History
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	deps := engine.Deps{
		Sessions: discovery.NewPortalProvider(cfg.SessionFile, cfg.PageTimeout),
		Fetcher:  fetcher.NewHTTPFetcher(fetcher.WithTimeout(cfg.FetchTimeout)),
	}

	a := &app{cfg: cfg}

	if cfg.HistoryDB != "" {
		h, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		a.history = h
		deps.Recorder = h
	}

	if cfg.Mirror.Enabled() {
		m, err := mirror.New(ctx, &cfg.Mirror)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Mirror = m
	}

	engines := make([]*engine.Engine, 0, len(cfg.Targets))
	for i := range cfg.Targets {
		e, err := engine.New(&cfg.Targets[i], deps, engine.WithWorkers(cfg.Workers))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("target %q: %w", cfg.Targets[i].Name, err)
		}
		engines = append(engines, e)
	}

	set, err := engine.NewSet(engines...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.set = set

	slog.Debug("targets ready", "targets", set.Names(), "history", cfg.HistoryDB != "", "mirror", cfg.Mirror.Enabled())
	return a, nil
}

// runHistory returns the journal as the interface the server expects, nil when disabled.
func (a *app) runHistory() trigger.RunHistory {
	if a.history == nil {
		return nil
	}
	return a.history
}

func (a *app) Close() error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}

// selectTargets returns the named targets, or all of them when names is empty.
func selectTargets(cfg *config.Config, names []string) ([]string, error) {
	if len(names) == 0 {
		return cfg.TargetNames(), nil
	}
	var errs []error
	for _, name := range names {
		if _, ok := cfg.Target(name); !ok {
			errs = append(errs, fmt.Errorf("unknown target %q (configured: %v)", name, cfg.TargetNames()))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return names, nil
}
