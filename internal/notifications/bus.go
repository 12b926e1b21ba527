package notifications

import (
	"context"
	"sync"
	"time"
)

// Record is a sequenced event kept in the bus history.
type Record struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Event     Event     `json:"event"`
	Payload   Payload   `json:"payload,omitempty"`
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Record
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Record, 0, maxEvents),
	}
}

// Publish implements Service.
func (b *EventBus) Publish(_ context.Context, event Event, payload Payload) error {
	b.Append(event, payload)
	return nil
}

// Append stores one event and assigns its sequence and timestamp.
func (b *EventBus) Append(event Event, payload Payload) Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	rec := Record{
		Seq:       b.nextSeq,
		Timestamp: time.Now().UTC(),
		Event:     event,
		Payload:   clonePayload(payload),
	}
	b.events = append(b.events, rec)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Record(nil), b.events[trim:]...)
	}
	return rec
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}
	out := make([]Record, 0, len(b.events))
	for _, rec := range b.events {
		if rec.Seq > seq {
			out = append(out, rec)
		}
	}
	return out
}

// LastSeq returns the most recently assigned sequence number.
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}

func clonePayload(p Payload) Payload {
	if len(p) == 0 {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
