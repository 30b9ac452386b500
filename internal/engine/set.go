package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openmined/docsync/internal/config"
)

var (
	ErrUnknownTarget = errors.New("engine: unknown target")
	ErrRunInProgress = errors.New("engine: a run of this target is already in progress")
)

// Set holds one Engine per target and refuses to start a second run of a target while
// one is in flight.
type Set struct {
	engines map[string]*Engine
	order   []string
	running map[string]*sync.Mutex
}

func NewSet(engines ...*Engine) (*Set, error) {
	s := &Set{
		engines: make(map[string]*Engine, len(engines)),
		running: make(map[string]*sync.Mutex, len(engines)),
	}
	for _, e := range engines {
		name := e.target.Name
		if _, ok := s.engines[name]; ok {
			return nil, fmt.Errorf("engine: duplicate target %q", name)
		}
		s.engines[name] = e
		s.running[name] = &sync.Mutex{}
		s.order = append(s.order, name)
	}
	return s, nil
}

// Names returns the target names in registration order.
func (s *Set) Names() []string {
	return append([]string(nil), s.order...)
}

func (s *Set) Targets() []config.Target {
	out := make([]config.Target, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.engines[name].target)
	}
	return out
}

func (s *Set) Has(name string) bool {
	_, ok := s.engines[name]
	return ok
}

func (s *Set) Get(name string) (*Engine, bool) {
	e, ok := s.engines[name]
	return e, ok
}

// Run syncs the named target.
func (s *Set) Run(ctx context.Context, name string) (*RunResult, error) {
	e, ok := s.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}

	mu := s.running[name]
	if !mu.TryLock() {
		return nil, fmt.Errorf("%w: %q", ErrRunInProgress, name)
	}
	defer mu.Unlock()

	return e.Run(ctx)
}
