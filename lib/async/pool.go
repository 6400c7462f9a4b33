// Package async provides bounded worker pool utilities.
package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/panics"

	"github.com/coachpo/messenger/errs"
)

// Task represents a unit of work executed by the pool workers.
type Task func(context.Context) error

// PanicHandler observes panics recovered from pool tasks.
type PanicHandler func(*panics.Recovered)

// Pool is a fixed set of workers fed by a bounded queue.
//
// Submit enforces backpressure by rejecting work when the queue is full. Go never
// rejects an open pool: when the queue is saturated the task runs on an overflow
// goroutine so fire-and-forget callers are never blocked.
type Pool struct {
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    chan job
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	onPanic PanicHandler
}

type job struct {
	ctx context.Context
	fn  Task
}

// Option configures a Pool.
type Option func(*Pool)

// WithPanicHandler installs a hook invoked for every recovered task panic.
func WithPanicHandler(fn PanicHandler) Option {
	return func(p *Pool) {
		p.onPanic = fn
	}
}

// NewPool creates a worker pool with the given concurrency and queue depth.
func NewPool(workers, queue int, opts ...Option) (*Pool, error) {
	if workers <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := new(Pool)
	p.ctx = ctx
	p.cancel = cancel
	p.jobs = make(chan job, queue)
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p, nil
}

// Submit schedules the provided task for execution respecting pool backpressure.
func (p *Pool) Submit(ctx context.Context, fn Task) error {
	if fn == nil {
		return errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submit context: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	}
	p.wg.Add(1)
	select {
	case p.jobs <- job{ctx: ctx, fn: fn}:
		return nil
	default:
		p.wg.Done()
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool at capacity"))
	}
}

// Go runs fn asynchronously and returns immediately. It returns an error only when
// fn is nil or the pool has been closed.
func (p *Pool) Go(fn func()) error {
	if fn == nil {
		return errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	task := func(context.Context) error {
		fn()
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	}
	p.wg.Add(1)
	select {
	case p.jobs <- job{ctx: p.ctx, fn: task}:
	default:
		go func() {
			p.run(job{ctx: p.ctx, fn: task})
		}()
	}
	return nil
}

// Close stops accepting new tasks. Queued tasks still run.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
}

// Shutdown waits for in-flight tasks to complete or until the context expires.
// Task contexts are cancelled once the wait ends either way.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	defer p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (p *Pool) worker() {
	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	defer p.wg.Done()
	ctx := j.ctx
	if ctx == nil {
		ctx = p.ctx
	}
	recovered := panics.Try(func() {
		// Task errors are the caller's concern; the worker keeps running.
		_ = j.fn(ctx)
	})
	if recovered != nil && p.onPanic != nil {
		p.onPanic(recovered)
	}
}
