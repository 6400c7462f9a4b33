package messenger

// KindStats describes the subscriptions of one kind.
type KindStats struct {
	Kind        string         `json:"kind"`
	Subscribers int            `json:"subscribers"`
	Weak        int            `json:"weak"`
	Tags        map[string]int `json:"tags,omitempty"`
}

// Stats is a point-in-time snapshot of the hub.
type Stats struct {
	Kinds         []KindStats `json:"kinds"`
	PendingPurges int         `json:"pendingPurges"`
	Published     uint64      `json:"published"`
	Delivered     uint64      `json:"delivered"`
	Dead          uint64      `json:"dead"`
	Dropped       uint64      `json:"dropped"`
	Faults        uint64      `json:"faults"`
	Sweeps        uint64      `json:"sweeps"`
	Purged        uint64      `json:"purged"`
}

// Stats snapshots registry occupancy and lifetime counters. Kinds are sorted by name.
func (h *Hub) Stats() Stats {
	kinds := h.Kinds()

	h.mu.RLock()
	out := Stats{
		Kinds:         make([]KindStats, 0, len(kinds)),
		PendingPurges: len(h.pending),
	}
	for _, kind := range kinds {
		subs := h.subscriptions[kind]
		if len(subs) == 0 {
			continue
		}
		ks := KindStats{Kind: kind.Name(), Subscribers: len(subs)}
		for _, sub := range subs {
			if sub.Reference() == ReferenceWeak {
				ks.Weak++
			}
			if tag := sub.Tag(); tag != "" {
				if ks.Tags == nil {
					ks.Tags = make(map[string]int)
				}
				ks.Tags[tag]++
			}
		}
		out.Kinds = append(out.Kinds, ks)
	}
	h.mu.RUnlock()

	out.Published = h.metrics.published.Load()
	out.Delivered = h.metrics.delivered.Load()
	out.Dead = h.metrics.dead.Load()
	out.Dropped = h.metrics.dropped.Load()
	out.Faults = h.metrics.faults.Load()
	out.Sweeps = h.metrics.sweeps.Load()
	out.Purged = h.metrics.purged.Load()
	return out
}
