// Package eventbus implements the Event Bus and Subscription Registry (C7):
// in-process fan-out of StatusEvents into per-subscription bounded FIFO
// buffers, with reconnection-by-clientId, replay-on-attach, and a periodic
// reaper.
package eventbus

import (
	"github.com/codeready-toolchain/agentflow/pkg/model"
)

// ringBuffer holds at most `cap` real StatusEvents in FIFO order. Dropped
// events are never stored; instead a one-shot sentinel's dropped-count is
// tracked separately and surfaced at replay/attach time as the first entry.
// The cap governs only real events; the sentinel is metadata about what was
// lost, not a slot.
type ringBuffer struct {
	cap           int
	events        []model.StatusEvent
	overflow      bool
	overflowCount int
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &ringBuffer{cap: capacity, events: make([]model.StatusEvent, 0, capacity)}
}

// push appends an event, dropping the oldest and recording an overflow if the
// buffer is already at capacity. Further overflows increment the same
// counter rather than creating additional sentinels.
func (b *ringBuffer) push(e model.StatusEvent) {
	if len(b.events) < b.cap {
		b.events = append(b.events, e)
		return
	}
	b.overflow = true
	b.overflowCount++
	b.events = append(b.events[1:], e)
}

// drain returns the buffered events in delivery order — a single
// BufferOverflow sentinel first (if any events were dropped), then the
// retained real events in FIFO order — and empties the buffer. The buffer
// holds only undelivered events: once a consumer has replayed them they are
// gone, so a later reattach replays only what that consumer missed.
func (b *ringBuffer) drain() []model.StatusEvent {
	var out []model.StatusEvent
	if b.overflow {
		sentinel := model.StatusEvent{
			Source:  model.EventSource{Kind: model.SourceOrchestrator},
			Kind:    model.EventBufferOverflow,
			Payload: model.BufferOverflowPayload{DroppedCount: b.overflowCount},
		}
		if len(b.events) > 0 {
			sentinel.SubscriptionID = b.events[0].SubscriptionID
			sentinel.Timestamp = b.events[0].Timestamp
		}
		out = append(out, sentinel)
	}
	out = append(out, b.events...)

	b.events = make([]model.StatusEvent, 0, b.cap)
	b.overflow = false
	b.overflowCount = 0
	return out
}

// realSize is the count of real (non-sentinel) buffered events.
func (b *ringBuffer) realSize() int { return len(b.events) }
