package messenger

import (
	"fmt"
	"runtime"
	"weak"

	"github.com/google/uuid"

	"github.com/coachpo/messenger/errs"
)

// SubscriptionID uniquely identifies a subscription within a hub.
type SubscriptionID string

func newSubscriptionID() SubscriptionID {
	return SubscriptionID(uuid.NewString())
}

// subscription is the type-erased registry entry. Invoke reports false when the
// handler has been reclaimed and nothing was scheduled.
type subscription interface {
	ID() SubscriptionID
	Tag() string
	Reference() Reference
	Alive() bool
	Invoke(msg Message) bool
	detach()
}

type subscriptionBase struct {
	id       SubscriptionID
	kind     Kind
	tag      string
	schedule func(action func())
}

func (s *subscriptionBase) ID() SubscriptionID { return s.id }
func (s *subscriptionBase) Tag() string        { return s.tag }

type strongSubscription[T Message] struct {
	subscriptionBase
	handler func(T)
}

func (s *strongSubscription[T]) Reference() Reference { return ReferenceStrong }
func (s *strongSubscription[T]) Alive() bool          { return true }
func (s *strongSubscription[T]) detach()              {}

func (s *strongSubscription[T]) Invoke(msg Message) bool {
	typed := mustCast[T](s.kind, msg)
	handler := s.handler
	s.schedule(func() { handler(typed) })
	return true
}

// handlerRef boxes a handler so a weak pointer can observe it.
type handlerRef[T Message] struct {
	fn func(T)
}

type weakSubscription[T Message] struct {
	subscriptionBase
	ref     weak.Pointer[handlerRef[T]]
	cleanup runtime.Cleanup
}

func (s *weakSubscription[T]) Reference() Reference { return ReferenceWeak }

func (s *weakSubscription[T]) Alive() bool {
	return s.ref.Value() != nil
}

func (s *weakSubscription[T]) Invoke(msg Message) bool {
	typed := mustCast[T](s.kind, msg)
	box := s.ref.Value()
	if box == nil {
		return false
	}
	handler := box.fn
	s.schedule(func() { handler(typed) })
	return true
}

func (s *weakSubscription[T]) detach() {
	s.cleanup.Stop()
}

func mustCast[T Message](kind Kind, msg Message) T {
	typed, ok := msg.(T)
	if !ok {
		panic(errs.New("messenger/invoke", errs.CodeInternal,
			errs.WithMessage("message does not match subscription kind"),
			errs.WithField("kind", kind.String()),
			errs.WithField("message", fmt.Sprintf("%T", msg))))
	}
	return typed
}
