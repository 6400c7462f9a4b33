package messenger

import (
	"reflect"
	"strings"
)

// Kind identifies a message variant. It is the registry key and is comparable.
type Kind struct {
	t reflect.Type
}

// KindOf returns the kind of the static type T.
func KindOf[T any]() Kind {
	return Kind{t: reflect.TypeFor[T]()}
}

// KindOfMessage returns the dynamic kind of msg. A nil interface yields the zero Kind.
func KindOfMessage(msg Message) Kind {
	if msg == nil {
		return Kind{}
	}
	return Kind{t: reflect.TypeOf(msg)}
}

// IsZero reports whether k identifies no type.
func (k Kind) IsZero() bool {
	return k.t == nil
}

// Type exposes the underlying reflect.Type.
func (k Kind) Type() reflect.Type {
	return k.t
}

func (k Kind) String() string {
	if k.t == nil {
		return "<nil>"
	}
	return k.t.String()
}

// Name returns the kind qualified by its import path, such as
// "*example.com/app/events.Ping". Unlike String it tells apart types that share a
// package name, so it is used wherever kinds are sorted or exported as labels.
func (k Kind) Name() string {
	if k.t == nil {
		return "<nil>"
	}
	t := k.t
	depth := 0
	for t.Kind() == reflect.Pointer && t.Name() == "" {
		t = t.Elem()
		depth++
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return k.t.String()
	}
	return strings.Repeat("*", depth) + t.PkgPath() + "." + t.Name()
}

func (k Kind) isInterface() bool {
	return k.t != nil && k.t.Kind() == reflect.Interface
}

func (k Kind) accepts(msg Message) bool {
	if k.t == nil || msg == nil {
		return false
	}
	return reflect.TypeOf(msg).AssignableTo(k.t)
}
