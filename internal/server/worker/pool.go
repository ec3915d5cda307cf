// Package worker runs supervised background tasks that outlive the HTTP
// request that triggered them. A panicking task is logged and never takes
// down sibling tasks or the scheduler.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/wayfarerapp/wayfarer-server/internal/logging"
)

// Pool supervises detached goroutines. Tasks receive the pool's base
// context, which is cancelled only on Shutdown, not when the submitting
// request finishes.
type Pool struct {
	logger logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool constructs a Pool with its own lifecycle.
func NewPool(l logging.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger: l.With("module", "worker"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *Pool) run(name string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(p.ctx, "background task panicked", "task", name, "panic", r)
		}
	}()
	fn(p.ctx)
}

// Submit schedules fn as a fire-and-forget task and returns immediately.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(name, fn)
	}()
}

// RunEvery schedules fn on a fixed interval until the pool shuts down.
// Each tick is supervised independently.
func (p *Pool) RunEvery(name string, interval time.Duration, fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.run(name, fn)
			}
		}
	}()
}

// Shutdown cancels the pool's context and waits for running tasks, up to
// the deadline of the provided context.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
