// Package progress fans run state changes out to streaming observers.
//
// Each run id maps to a topic holding an append-only event log and the set of
// live subscriber channels. Subscribers attached mid-run receive every event
// published since the run started, then live events in publish order.
// Topics for terminal runs are retained for a grace period so a client can
// reconnect after a transient disconnect and still fetch the final result.
package progress

import (
	"sync"
	"time"
)

const subscriberBuffer = 64

// Hub is the per-run publish/subscribe channel.
type Hub struct {
	mu        sync.Mutex
	topics    map[string]*topic
	retention time.Duration
	now       func() time.Time
}

type topic struct {
	log      []Event
	seq      uint64
	subs     map[chan Event]struct{}
	terminal bool
}

// NewHub creates a hub retaining terminal run topics for the given grace
// period.
func NewHub(retention time.Duration) *Hub {
	return &Hub{
		topics:    make(map[string]*topic),
		retention: retention,
		now:       time.Now,
	}
}

// Publish appends the event to the run's log and delivers it to all current
// subscribers in order. A subscriber that stops reading is dropped rather
// than blocking the publisher.
func (h *Hub) Publish(runID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[runID]
	if !ok {
		t = &topic{subs: make(map[chan Event]struct{})}
		h.topics[runID] = t
	}
	if t.terminal {
		return
	}

	t.seq++
	ev.RunID = runID
	ev.Seq = t.seq
	if ev.At.IsZero() {
		ev.At = h.now()
	}
	t.log = append(t.log, ev)

	for ch := range t.subs {
		select {
		case ch <- ev:
		default:
			delete(t.subs, ch)
			close(ch)
		}
	}

	if ev.Type == EventComplete {
		t.terminal = true
		for ch := range t.subs {
			delete(t.subs, ch)
			close(ch)
		}
		runID := runID
		time.AfterFunc(h.retention, func() { h.drop(runID) })
	}
}

// Subscribe attaches an observer to the run. The returned channel first
// replays every buffered event, then carries live events; it is closed when
// the run completes or the subscriber is cancelled via the returned cancel
// function. ok is false when the run id is unknown (never started, or pruned
// after the retention window).
func (h *Hub) Subscribe(runID string) (ch <-chan Event, cancel func(), ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, found := h.topics[runID]
	if !found {
		return nil, nil, false
	}

	out := make(chan Event, len(t.log)+subscriberBuffer)
	for _, ev := range t.log {
		out <- ev
	}
	if t.terminal {
		close(out)
		return out, func() {}, true
	}

	t.subs[out] = struct{}{}
	cancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, live := t.subs[out]; live {
			delete(t.subs, out)
			close(out)
		}
	}
	return out, cancel, true
}

// Track registers the run id before any event is published so that early
// subscribers do not miss the run entirely.
func (h *Hub) Track(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topics[runID]; !ok {
		h.topics[runID] = &topic{subs: make(map[chan Event]struct{})}
	}
}

func (h *Hub) drop(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[runID]
	if !ok {
		return
	}
	for ch := range t.subs {
		delete(t.subs, ch)
		close(ch)
	}
	delete(h.topics, runID)
}
