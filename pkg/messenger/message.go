package messenger

import (
	"reflect"

	"github.com/coachpo/messenger/errs"
)

// Message is implemented by every value carried by the hub. Sender identifies the
// publishing party and must not be nil.
type Message interface {
	Sender() any
}

// Envelope is an embeddable Message base carrying the sender.
type Envelope struct {
	From any
}

// NewEnvelope returns an Envelope for sender.
func NewEnvelope(sender any) Envelope {
	return Envelope{From: sender}
}

// Sender returns the party that published the message.
func (e Envelope) Sender() any {
	return e.From
}

func validateMessage(scope string, msg Message) error {
	if isNil(msg) {
		return errs.Invalid(scope, "message required")
	}
	if isNil(msg.Sender()) {
		return errs.New(scope, errs.CodeInvalid,
			errs.WithMessage("message sender required"),
			errs.WithField("kind", KindOfMessage(msg).String()))
	}
	return nil
}

// isNil treats typed nil pointers, maps, slices, channels and funcs as absent.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
