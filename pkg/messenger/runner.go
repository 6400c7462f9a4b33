package messenger

import (
	"github.com/coachpo/messenger/lib/async"
)

// Runner executes an action on the execution context it represents. Run returns
// without waiting for asynchronous policies and reports whether the action was
// accepted; a refused action never runs.
type Runner interface {
	Run(action func()) bool
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(action func()) bool

// Run calls f(action).
func (f RunnerFunc) Run(action func()) bool {
	return f(action)
}

// RunnerPolicy selects one of the hub's built-in runners.
type RunnerPolicy uint8

const (
	// RunInline calls the handler on the publishing goroutine.
	RunInline RunnerPolicy = iota
	// RunOnMainThread hands the handler to the hub's MainThreadDispatcher.
	RunOnMainThread
	// RunOnThreadPool hands the handler to the hub's worker pool.
	RunOnThreadPool
)

func (p RunnerPolicy) String() string {
	switch p {
	case RunInline:
		return "inline"
	case RunOnMainThread:
		return "main_thread"
	case RunOnThreadPool:
		return "pool"
	default:
		return "unknown"
	}
}

// InlineRunner runs actions synchronously on the caller's goroutine.
type InlineRunner struct{}

// Run executes action immediately.
func (InlineRunner) Run(action func()) bool {
	action()
	return true
}

// MainThreadRunner forwards actions to a MainThreadDispatcher. Without a dispatcher,
// or when the dispatcher refuses the action, the action is dropped.
type MainThreadRunner struct {
	dispatcher MainThreadDispatcher
}

// NewMainThreadRunner builds a runner over dispatcher.
func NewMainThreadRunner(dispatcher MainThreadDispatcher) *MainThreadRunner {
	return &MainThreadRunner{dispatcher: dispatcher}
}

// Run schedules action on the main thread.
func (r *MainThreadRunner) Run(action func()) bool {
	return r.dispatcher != nil && r.dispatcher.RequestMainThreadAction(action)
}

// PoolRunner hands actions to a worker pool. Actions may run in parallel and in any order.
type PoolRunner struct {
	pool *async.Pool
}

// NewPoolRunner builds a runner over pool.
func NewPoolRunner(pool *async.Pool) *PoolRunner {
	return &PoolRunner{pool: pool}
}

// Run submits action to the pool. A nil or closed pool refuses it.
func (r *PoolRunner) Run(action func()) bool {
	return r.pool != nil && r.pool.Go(action) == nil
}
