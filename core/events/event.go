package events

import "creatorpay/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Record is implemented by events that can render themselves in wire form.
type Record interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (audit log, websocket
// stream, metrics).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// ToRecord converts an event into its wire form. Events without a wire form
// yield nil.
func ToRecord(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	rec, ok := evt.(Record)
	if !ok {
		return nil
	}
	return rec.Event()
}
