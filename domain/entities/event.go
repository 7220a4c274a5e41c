package entities

import (
	"sync"
	"time"
)

// EventKind identifies a lifecycle event emitted by the audio pipeline
type EventKind string

// Lifecycle event kinds
const (
	EventChunkReceived   EventKind = "chunk_received"
	EventPlaybackStarted EventKind = "playback_started"
	EventPlaybackEnded   EventKind = "playback_ended"
	EventMessageComplete EventKind = "message_complete"
	EventChunkCancelled  EventKind = "chunk_cancelled"
	EventSessionClosed   EventKind = "session_closed"
	EventDecodeError     EventKind = "decode_error"
	EventPlaybackError   EventKind = "playback_error"
)

// AudioEvent is one lifecycle event. Events are observational only and must
// never influence playback timing.
type AudioEvent struct {
	Kind      EventKind `json:"kind"`
	MessageID string    `json:"message_id,omitempty"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// DefaultEventHistoryCapacity bounds the diagnostics ring buffer.
const DefaultEventHistoryCapacity = 500

// EventHistory is a bounded FIFO ring of lifecycle events used for
// diagnostics. The owning component appends; everyone else reads snapshots.
// Oldest entries are evicted on overflow.
type EventHistory struct {
	mu    sync.Mutex
	buf   []AudioEvent
	start int
	count int
}

// NewEventHistory creates a history with the given capacity. A capacity of
// zero or less falls back to DefaultEventHistoryCapacity.
func NewEventHistory(capacity int) *EventHistory {
	if capacity <= 0 {
		capacity = DefaultEventHistoryCapacity
	}
	return &EventHistory{buf: make([]AudioEvent, capacity)}
}

// Append records an event, evicting the oldest entry when full. A zero
// timestamp is stamped with the current time.
func (h *EventHistory) Append(ev AudioEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count < len(h.buf) {
		h.buf[(h.start+h.count)%len(h.buf)] = ev
		h.count++
		return
	}
	h.buf[h.start] = ev
	h.start = (h.start + 1) % len(h.buf)
}

// Snapshot returns the recorded events from oldest to newest.
func (h *EventHistory) Snapshot() []AudioEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]AudioEvent, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Len returns the number of recorded events.
func (h *EventHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Capacity returns the fixed capacity of the ring.
func (h *EventHistory) Capacity() int {
	return len(h.buf)
}
