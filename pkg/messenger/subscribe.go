package messenger

import (
	"runtime"
	"weak"

	"github.com/coachpo/messenger/errs"
)

// Subscribe registers handler for messages of kind T, called on the publishing goroutine.
func Subscribe[T Message](h *Hub, handler func(T), opts ...SubscribeOption) (*Token, error) {
	return subscribe(h, handler, RunInline, opts)
}

// SubscribeOnMainThread registers handler to run through the hub's MainThreadDispatcher.
// Deliveries are dropped while no dispatcher is installed.
func SubscribeOnMainThread[T Message](h *Hub, handler func(T), opts ...SubscribeOption) (*Token, error) {
	return subscribe(h, handler, RunOnMainThread, opts)
}

// SubscribeOnThreadPool registers handler to run on the hub's worker pool.
func SubscribeOnThreadPool[T Message](h *Hub, handler func(T), opts ...SubscribeOption) (*Token, error) {
	return subscribe(h, handler, RunOnThreadPool, opts)
}

// SubscribeWithPolicy registers handler under an explicit runner policy.
func SubscribeWithPolicy[T Message](h *Hub, policy RunnerPolicy, handler func(T), opts ...SubscribeOption) (*Token, error) {
	return subscribe(h, handler, policy, opts)
}

func subscribe[T Message](h *Hub, handler func(T), policy RunnerPolicy, opts []SubscribeOption) (*Token, error) {
	if h == nil {
		return nil, errs.Invalid("messenger/subscribe", "hub required")
	}
	if handler == nil {
		return nil, errs.Invalid("messenger/subscribe", "handler required")
	}
	var so subscribeOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&so)
		}
	}
	reference := so.reference
	if reference == ReferenceDefault {
		reference = h.defaultReference
	}
	runner, label, err := h.runnerFor(policy, so.runner)
	if err != nil {
		return nil, err
	}

	kind := KindOf[T]()
	id := newSubscriptionID()
	base := subscriptionBase{
		id:       id,
		kind:     kind,
		tag:      so.tag,
		schedule: h.scheduler(kind, id, label, runner),
	}

	var (
		sub       subscription
		keepAlive any
	)
	switch reference {
	case ReferenceStrong:
		sub = &strongSubscription[T]{subscriptionBase: base, handler: handler}
	case ReferenceWeak:
		box := &handlerRef[T]{fn: handler}
		ws := &weakSubscription[T]{subscriptionBase: base, ref: weak.Make(box)}
		ws.cleanup = runtime.AddCleanup(box, h.RequestPurge, kind)
		sub = ws
		keepAlive = box
	default:
		return nil, errs.New("messenger/subscribe", errs.CodeInvalid,
			errs.WithMessage("unknown reference mode"),
			errs.WithField("reference", reference.String()))
	}

	if err := h.insert(kind, sub, label); err != nil {
		sub.detach()
		return nil, err
	}
	return newToken(id, kind, keepAlive, func() { h.Unsubscribe(kind, id) }), nil
}

// Unsubscribe releases token from h. It is equivalent to token.Release when the
// token was issued by h.
func Unsubscribe(h *Hub, token *Token) {
	if h == nil || token == nil {
		return
	}
	token.Release()
}

// Publish delivers msg to the subscribers of the declared kind T. When T is an
// interface type the dynamic kind of msg is used instead.
func Publish[T Message](h *Hub, msg T) error {
	if h == nil {
		return errs.Invalid("messenger/publish", "hub required")
	}
	kind := KindOf[T]()
	if kind.isInterface() {
		return h.Publish(msg)
	}
	return h.PublishAs(msg, kind)
}
