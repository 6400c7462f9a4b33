package messenger

// SubscriberChangeMessage is published by a Hub whenever the subscription set of a
// message kind changes or is swept. It is never published about its own kind.
type SubscriberChangeMessage struct {
	Envelope
	MessageKind     Kind
	SubscriberCount int
}

var changeKind = KindOf[*SubscriberChangeMessage]()

func (h *Hub) notifyChange(kind Kind, count int) {
	if kind == changeKind {
		return
	}
	h.metrics.recordSubscribers(kind, count)
	h.publish(&SubscriberChangeMessage{
		Envelope:        NewEnvelope(h),
		MessageKind:     kind,
		SubscriberCount: count,
	}, changeKind)
}
