package messenger

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
)

// MainThreadDispatcher schedules actions for eventual execution on a designated
// goroutine. It reports false when the action will never run.
type MainThreadDispatcher interface {
	RequestMainThreadAction(action func()) bool
}

// DispatcherFunc adapts a function to MainThreadDispatcher.
type DispatcherFunc func(action func()) bool

// RequestMainThreadAction calls f(action).
func (f DispatcherFunc) RequestMainThreadAction(action func()) bool {
	return f(action)
}

// LoopDispatcher is a MainThreadDispatcher backed by an unbounded FIFO queue. The
// goroutine that calls Run or RunPending becomes the main thread.
type LoopDispatcher struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	signal chan struct{}
	done   chan struct{}
	logger logrus.FieldLogger
}

// NewLoopDispatcher creates an idle dispatcher. A nil logger discards fault reports.
func NewLoopDispatcher(logger logrus.FieldLogger) *LoopDispatcher {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &LoopDispatcher{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// RequestMainThreadAction enqueues action. It returns false once the dispatcher is closed.
func (d *LoopDispatcher) RequestMainThreadAction(action func()) bool {
	if action == nil {
		return false
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, action)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
	return true
}

// Run drains the queue on the calling goroutine until ctx is done or Close is called.
// Actions queued before Close still run.
func (d *LoopDispatcher) Run(ctx context.Context) error {
	for {
		d.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.signal:
		case <-d.done:
			d.RunPending()
			return nil
		}
	}
}

// RunPending executes every queued action and returns how many ran.
func (d *LoopDispatcher) RunPending() int {
	d.mu.Lock()
	batch := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, action := range batch {
		if r := panics.Try(action); r != nil {
			d.logger.WithField("panic", r.Value).Error("main thread action failed")
		}
	}
	return len(batch)
}

// Len reports the number of queued actions.
func (d *LoopDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close rejects further actions and wakes Run.
func (d *LoopDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.done)
}
