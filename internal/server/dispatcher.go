package server

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher runs fire-and-forget syncs. Jobs get a context that is independent of the
// request which started them and is cancelled when the dispatcher shuts down.
type Dispatcher struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher() *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{ctx: ctx, cancel: cancel}
}

// Go starts fn in the background. After Shutdown the job is dropped.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context)) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		slog.Warn("dispatcher closed, job dropped", "job", name)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background job panic", "job", name, "panic", r)
			}
		}()
		slog.Debug("background job start", "job", name)
		fn(d.ctx)
		slog.Debug("background job done", "job", name)
	}()
}

// Shutdown cancels running jobs and waits for them until ctx expires.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
