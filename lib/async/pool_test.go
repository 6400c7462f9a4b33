package async

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coachpo/messenger/errs"
)

func TestNewPoolRejectsZeroWorkers(t *testing.T) {
	_, err := NewPool(0, 1)
	require.True(t, errs.IsCode(err, errs.CodeInvalid))
}

func TestGoRunsTasksAndShutdownDrains(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool, err := NewPool(2, 1)
	require.NoError(t, err)

	var ran atomic.Int32
	for i := 0; i < 50; i++ {
		require.NoError(t, pool.Go(func() { ran.Add(1) }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
	require.EqualValues(t, 50, ran.Load())
}

func TestGoAfterCloseIsUnavailable(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool, err := NewPool(1, 0)
	require.NoError(t, err)
	pool.Close()
	pool.Close()

	err = pool.Go(func() {})
	require.True(t, errs.IsCode(err, errs.CodeUnavailable))
	err = pool.Submit(context.Background(), func(context.Context) error { return nil })
	require.True(t, errs.IsCode(err, errs.CodeUnavailable))
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestSubmitRejectsWhenSaturated(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool, err := NewPool(1, 1)
	require.NoError(t, err)
	release := make(chan struct{})
	defer func() { require.NoError(t, pool.Shutdown(context.Background())) }()
	defer close(release)

	started := make(chan struct{})
	require.NoError(t, pool.Go(func() {
		close(started)
		<-release
	}))
	<-started

	blocked := func(context.Context) error {
		<-release
		return nil
	}
	require.NoError(t, pool.Submit(context.Background(), blocked))
	err = pool.Submit(context.Background(), blocked)
	require.True(t, errs.IsCode(err, errs.CodeUnavailable))
}

func TestSubmitPassesContextToTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool, err := NewPool(1, 1)
	require.NoError(t, err)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "sweep")
	seen := make(chan any, 1)
	require.NoError(t, pool.Submit(ctx, func(ctx context.Context) error {
		seen <- ctx.Value(key{})
		return nil
	}))
	require.Equal(t, "sweep", <-seen)
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestSubmitRejectsNilAndCancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool, err := NewPool(1, 1)
	require.NoError(t, err)
	defer func() { require.NoError(t, pool.Shutdown(context.Background())) }()

	require.True(t, errs.IsCode(pool.Submit(context.Background(), nil), errs.CodeInvalid))
	require.True(t, errs.IsCode(pool.Go(nil), errs.CodeInvalid))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, pool.Submit(ctx, func(context.Context) error { return nil }), context.Canceled)
}

func TestPanickingTaskDoesNotKillWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	var recovered atomic.Value
	pool, err := NewPool(1, 4, WithPanicHandler(func(r *panics.Recovered) {
		recovered.Store(r.Value)
	}))
	require.NoError(t, err)

	var ran atomic.Bool
	require.NoError(t, pool.Go(func() { panic("boom") }))
	require.NoError(t, pool.Go(func() { ran.Store(true) }))
	require.NoError(t, pool.Shutdown(context.Background()))

	require.True(t, ran.Load())
	require.Equal(t, "boom", recovered.Load())
}

func TestShutdownHonoursDeadline(t *testing.T) {
	pool, err := NewPool(1, 0)
	require.NoError(t, err)

	release := make(chan struct{})
	require.NoError(t, pool.Go(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)
	close(release)
}
