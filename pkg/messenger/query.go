package messenger

import (
	"sort"
)

// HasSubscriptions reports whether kind has at least one subscription.
func (h *Hub) HasSubscriptions(kind Kind) bool {
	return h.Count(kind) > 0
}

// Count returns the number of subscriptions registered for kind, including weak
// subscriptions not yet purged.
func (h *Hub) Count(kind Kind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[kind])
}

// HasSubscriptionsForTag reports whether kind has a subscription tagged tag.
func (h *Hub) HasSubscriptionsForTag(kind Kind, tag string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscriptions[kind] {
		if sub.Tag() == tag {
			return true
		}
	}
	return false
}

// CountForTag returns the number of subscriptions of kind tagged tag.
func (h *Hub) CountForTag(kind Kind, tag string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sub := range h.subscriptions[kind] {
		if sub.Tag() == tag {
			n++
		}
	}
	return n
}

// TagsFor returns the tag of every subscription of kind in no particular order.
// Untagged subscriptions contribute an empty string.
func (h *Hub) TagsFor(kind Kind) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := h.subscriptions[kind]
	tags := make([]string, 0, len(subs))
	for _, sub := range subs {
		tags = append(tags, sub.Tag())
	}
	return tags
}

// Kinds returns every kind that currently has subscriptions, sorted by name.
func (h *Hub) Kinds() []Kind {
	h.mu.RLock()
	kinds := make([]Kind, 0, len(h.subscriptions))
	for kind := range h.subscriptions {
		kinds = append(kinds, kind)
	}
	h.mu.RUnlock()
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Name() < kinds[j].Name() })
	return kinds
}

// HasSubscriptionsFor reports whether kind T has subscriptions.
func HasSubscriptionsFor[T Message](h *Hub) bool {
	return h.HasSubscriptions(KindOf[T]())
}

// CountFor returns the number of subscriptions of kind T.
func CountFor[T Message](h *Hub) int {
	return h.Count(KindOf[T]())
}

// HasSubscriptionsForTag reports whether kind T has a subscription tagged tag.
func HasSubscriptionsForTag[T Message](h *Hub, tag string) bool {
	return h.HasSubscriptionsForTag(KindOf[T](), tag)
}

// CountForTag returns the number of subscriptions of kind T tagged tag.
func CountForTag[T Message](h *Hub, tag string) int {
	return h.CountForTag(KindOf[T](), tag)
}

// TagsFor returns the tags of the subscriptions of kind T.
func TagsFor[T Message](h *Hub) []string {
	return h.TagsFor(KindOf[T]())
}
