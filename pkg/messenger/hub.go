// Package messenger implements an in-process typed publish/subscribe hub.
//
// Handlers are registered per message kind and run inline, on a designated main
// thread, or on a worker pool. Subscriptions hold their handler strongly or weakly;
// weak subscriptions whose handler has been reclaimed are removed by a coalesced
// asynchronous purge. Every change to a kind's subscription set is announced with a
// SubscriberChangeMessage.
package messenger

import (
	"context"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/coachpo/messenger/errs"
	"github.com/coachpo/messenger/lib/async"
)

// Hub is a concurrency-safe registry of typed subscriptions.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[Kind]map[SubscriptionID]subscription
	pending       map[Kind]struct{}
	closed        bool

	logger           logrus.FieldLogger
	dispatcher       MainThreadDispatcher
	pool             *async.Pool
	ownsPool         bool
	workers          int
	queueDepth       int
	defaultReference Reference
	purgeInterval    time.Duration
	meterProvider    metric.MeterProvider
	tracerProvider   trace.TracerProvider

	inline     Runner
	mainThread Runner
	pooled     Runner

	metrics *hubMetrics
	tracer  trace.Tracer

	lifetime  context.Context
	cancel    context.CancelFunc
	stop      chan struct{}
	bg        conc.WaitGroup
	closeOnce sync.Once
}

// New constructs a hub. Unless WithPool is given the hub owns a worker pool that
// Close shuts down.
func New(opts ...Option) (*Hub, error) {
	h := new(Hub)
	h.subscriptions = make(map[Kind]map[SubscriptionID]subscription)
	h.pending = make(map[Kind]struct{})
	h.workers = runtime.NumCPU()
	h.queueDepth = 1024
	h.defaultReference = ReferenceWeak
	h.ownsPool = true
	h.stop = make(chan struct{})
	h.lifetime, h.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	switch h.defaultReference {
	case ReferenceWeak, ReferenceStrong:
	default:
		h.cancel()
		return nil, errs.New("messenger/new", errs.CodeInvalid,
			errs.WithMessage("default reference must be weak or strong"),
			errs.WithField("reference", h.defaultReference.String()))
	}
	if h.logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		h.logger = discard
	}
	if h.meterProvider == nil {
		h.meterProvider = otel.GetMeterProvider()
	}
	if h.tracerProvider == nil {
		h.tracerProvider = otel.GetTracerProvider()
	}
	h.metrics = newHubMetrics(h.meterProvider.Meter("messenger"))
	h.tracer = h.tracerProvider.Tracer("messenger")

	if h.pool == nil {
		pool, err := async.NewPool(h.workers, h.queueDepth, async.WithPanicHandler(func(r *panics.Recovered) {
			h.logger.WithField("panic", r.Value).Error("messenger: background task panicked")
		}))
		if err != nil {
			h.cancel()
			return nil, err
		}
		h.pool = pool
		h.ownsPool = true
	}

	h.inline = InlineRunner{}
	h.mainThread = NewMainThreadRunner(h.dispatcher)
	h.pooled = NewPoolRunner(h.pool)

	if h.purgeInterval > 0 {
		h.bg.Go(h.janitor)
	}
	return h, nil
}

// Publish delivers msg to the subscribers of its dynamic kind.
func (h *Hub) Publish(msg Message) error {
	if err := validateMessage("messenger/publish", msg); err != nil {
		return err
	}
	return h.PublishAs(msg, KindOfMessage(msg))
}

// PublishAs delivers msg to the subscribers of kind. msg must be assignable to kind.
func (h *Hub) PublishAs(msg Message, kind Kind) error {
	if err := validateMessage("messenger/publish", msg); err != nil {
		return err
	}
	if kind.IsZero() {
		return errs.Invalid("messenger/publish", "message kind required")
	}
	if !kind.accepts(msg) {
		return errs.New("messenger/publish", errs.CodeInvalid,
			errs.WithMessage("message is not assignable to kind"),
			errs.WithField("kind", kind.String()),
			errs.WithField("message", KindOfMessage(msg).String()))
	}
	if h.isClosed() {
		return errs.New("messenger/publish", errs.CodeUnavailable, errs.WithMessage("hub closed"))
	}
	h.publish(msg, kind)
	return nil
}

// publish snapshots the subscribers of kind and invokes them with no lock held.
func (h *Hub) publish(msg Message, kind Kind) {
	started := time.Now()
	ctx, span := h.tracer.Start(context.Background(), "messenger.publish",
		trace.WithAttributes(attribute.String("message.kind", kind.Name())))
	defer span.End()

	h.mu.RLock()
	subs := h.subscriptions[kind]
	snapshot := make([]subscription, 0, len(subs))
	for _, sub := range subs {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	dead := 0
	for _, sub := range snapshot {
		if !sub.Invoke(msg) {
			dead++
		}
	}
	if dead > 0 {
		h.schedulePurge(kind)
	}

	span.SetAttributes(
		attribute.Int("messenger.fanout", len(snapshot)),
		attribute.Int("messenger.dead", dead))
	h.metrics.recordPublish(ctx, kind, dead, started)
}

// Unsubscribe removes the subscription id from kind. Unknown ids are ignored. A
// change notification carrying the resulting count is published either way.
func (h *Hub) Unsubscribe(kind Kind, id SubscriptionID) {
	h.mu.Lock()
	subs := h.subscriptions[kind]
	removed := subs[id]
	if removed != nil {
		delete(subs, id)
		if len(subs) == 0 {
			delete(h.subscriptions, kind)
		}
	}
	count := len(subs)
	h.mu.Unlock()

	if removed != nil {
		removed.detach()
		h.logger.WithFields(logrus.Fields{
			"kind":            kind.String(),
			"subscription_id": string(id),
		}).Debug("messenger: unsubscribed")
	}
	h.notifyChange(kind, count)
}

// RequestPurge schedules a liveness sweep of kind.
func (h *Hub) RequestPurge(kind Kind) {
	if kind.IsZero() {
		return
	}
	h.schedulePurge(kind)
}

// RequestPurgeAll schedules a liveness sweep of every registered kind.
func (h *Hub) RequestPurgeAll() {
	h.mu.RLock()
	kinds := make([]Kind, 0, len(h.subscriptions))
	for kind := range h.subscriptions {
		kinds = append(kinds, kind)
	}
	h.mu.RUnlock()
	h.schedulePurge(kinds...)
}

// schedulePurge adds kinds to the pending set. Only the insertion that makes the
// set non-empty schedules a sweep, so at most one sweep is ever waiting to start.
func (h *Hub) schedulePurge(kinds ...Kind) {
	if len(kinds) == 0 {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	wasEmpty := len(h.pending) == 0
	for _, kind := range kinds {
		h.pending[kind] = struct{}{}
	}
	schedule := wasEmpty && len(h.pending) > 0
	h.mu.Unlock()

	if !schedule {
		return
	}
	err := h.pool.Submit(h.lifetime, h.sweep)
	if errs.IsCode(err, errs.CodeUnavailable) {
		// Queue full or pool closed. Go takes the overflow path when only the queue is full.
		err = h.pool.Go(func() { _ = h.sweep(h.lifetime) })
	}
	if err != nil {
		h.mu.Lock()
		clear(h.pending)
		h.mu.Unlock()
		h.logger.WithError(err).Warn("messenger: purge sweep not scheduled")
	}
}

// sweep drains the pending set and purges each kind. A sweep that starts after Close
// does nothing.
func (h *Hub) sweep(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	kinds := make([]Kind, 0, len(h.pending))
	for kind := range h.pending {
		kinds = append(kinds, kind)
	}
	clear(h.pending)
	h.mu.Unlock()

	h.metrics.recordSweep(ctx)
	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.purgeKind(ctx, kind)
	}
	return nil
}

func (h *Hub) purgeKind(ctx context.Context, kind Kind) {
	h.mu.Lock()
	subs, ok := h.subscriptions[kind]
	if !ok {
		h.mu.Unlock()
		return
	}
	var reclaimed []subscription
	for id, sub := range subs {
		if !sub.Alive() {
			delete(subs, id)
			reclaimed = append(reclaimed, sub)
		}
	}
	count := len(subs)
	if count == 0 {
		delete(h.subscriptions, kind)
	}
	h.mu.Unlock()

	for _, sub := range reclaimed {
		sub.detach()
	}
	if len(reclaimed) > 0 {
		h.logger.WithFields(logrus.Fields{
			"kind":    kind.String(),
			"removed": len(reclaimed),
		}).Debug("messenger: purged reclaimed subscriptions")
	}
	h.metrics.recordPurged(ctx, kind, len(reclaimed))
	h.notifyChange(kind, count)
}

func (h *Hub) janitor() {
	ticker := time.NewTicker(h.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.RequestPurgeAll()
		}
	}
}

// Close stops the janitor, drops every subscription and shuts down the owned pool,
// waiting for queued handlers until ctx expires. Later subscribes and publishes fail
// with an unavailable error.
func (h *Hub) Close(ctx context.Context) error {
	var err error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		clear(h.pending)
		var dropped []subscription
		for kind, subs := range h.subscriptions {
			for _, sub := range subs {
				dropped = append(dropped, sub)
			}
			delete(h.subscriptions, kind)
		}
		h.mu.Unlock()

		for _, sub := range dropped {
			sub.detach()
		}
		h.cancel()
		close(h.stop)
		h.bg.Wait()
		if h.ownsPool {
			err = h.pool.Shutdown(ctx)
		}
	})
	return err
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// runnerFor resolves the runner and its metric label for a subscription.
func (h *Hub) runnerFor(policy RunnerPolicy, custom Runner) (Runner, string, error) {
	if custom != nil {
		return custom, "custom", nil
	}
	switch policy {
	case RunInline:
		return h.inline, policy.String(), nil
	case RunOnMainThread:
		return h.mainThread, policy.String(), nil
	case RunOnThreadPool:
		return h.pooled, policy.String(), nil
	default:
		return nil, "", errs.New("messenger/subscribe", errs.CodeInvalid,
			errs.WithMessage("unknown runner policy"),
			errs.WithField("policy", policy.String()))
	}
}

// scheduler binds a subscription to its runner. Every handler call runs inside a
// recovery boundary so a faulting handler never reaches the publisher or its siblings.
// Only actions the runner accepted count as deliveries; refused ones count as drops.
func (h *Hub) scheduler(kind Kind, id SubscriptionID, policy string, runner Runner) func(func()) {
	return func(action func()) {
		accepted := runner.Run(func() {
			if r := panics.Try(action); r != nil {
				h.metrics.recordFault(kind, policy)
				h.logger.WithFields(logrus.Fields{
					"kind":            kind.String(),
					"subscription_id": string(id),
					"policy":          policy,
				}).WithError(r.AsError()).Error("messenger: handler panicked")
			}
		})
		if !accepted {
			h.metrics.recordDrop(policy)
			return
		}
		h.metrics.recordDelivery(kind, policy)
	}
}

func (h *Hub) insert(kind Kind, sub subscription, policy string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errs.New("messenger/subscribe", errs.CodeUnavailable, errs.WithMessage("hub closed"))
	}
	subs := h.subscriptions[kind]
	if subs == nil {
		subs = make(map[SubscriptionID]subscription)
		h.subscriptions[kind] = subs
	}
	subs[sub.ID()] = sub
	count := len(subs)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"kind":            kind.String(),
		"subscription_id": string(sub.ID()),
		"tag":             sub.Tag(),
		"policy":          policy,
		"reference":       sub.Reference().String(),
	}).Debug("messenger: subscribed")
	h.notifyChange(kind, count)
	return nil
}
