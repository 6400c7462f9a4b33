package messenger

import (
	"sync"
)

// Token is returned by the subscribe functions. Releasing it removes the
// subscription. For weak subscriptions the token is what keeps the handler alive:
// once the token is unreachable the handler may be reclaimed and the subscription
// purged.
type Token struct {
	id        SubscriptionID
	kind      Kind
	once      sync.Once
	release   func()
	keepAlive any
}

func newToken(id SubscriptionID, kind Kind, keepAlive any, release func()) *Token {
	return &Token{id: id, kind: kind, release: release, keepAlive: keepAlive}
}

// ID returns the subscription identifier.
func (t *Token) ID() SubscriptionID { return t.id }

// Kind returns the message kind the subscription is registered under.
func (t *Token) Kind() Kind { return t.kind }

// Release unsubscribes. Calls after the first are no-ops.
func (t *Token) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		if t.release != nil {
			t.release()
		}
		t.keepAlive = nil
	})
}

// Close releases the token and implements io.Closer.
func (t *Token) Close() error {
	t.Release()
	return nil
}
