// Package gatebus provides the append-only event log and per-module gate
// flags used for cross-module handshakes and diagnostics.
//
// The bus is deliberately decoupled from business logic: modules emit typed
// events and flip gates; sinks (Redis stream, SQLite journal, WebSocket
// broadcaster) observe without being able to influence evaluation.
package gatebus

import (
	"sync"
	"time"
)

// Event is one entry in the append-only log.
type Event struct {
	Type string         `json:"type"`
	TS   time.Time      `json:"ts"`
	Data map[string]any `json:"data,omitempty"`
}

// Sink receives every appended event. Implementations must not block:
// publishing is fire-and-forget and the core never retries.
type Sink interface {
	Append(ev Event)
}

// Bus is the in-memory event log and gate registry.
// Emitters run on the engine goroutine; readers (diagnostics, the WS
// gateway) may live elsewhere, hence the lock.
type Bus struct {
	mu        sync.RWMutex
	events    []Event
	gates     map[string]bool
	sinks     []Sink
	maxEvents int

	subs []chan Event
}

// New creates a bus fanning out to the given sinks.
// maxEvents caps the retained log (0 means unbounded).
func New(maxEvents int, sinks ...Sink) *Bus {
	return &Bus{
		gates:     make(map[string]bool, 8),
		sinks:     sinks,
		maxEvents: maxEvents,
	}
}

// Emit appends an event to the log and fans it out.
func (b *Bus) Emit(evType string, ts time.Time, data map[string]any) {
	ev := Event{Type: evType, TS: ts, Data: data}

	b.mu.Lock()
	b.events = append(b.events, ev)
	if b.maxEvents > 0 && len(b.events) > b.maxEvents {
		b.events = b.events[len(b.events)-b.maxEvents:]
	}
	subs := b.subs
	b.mu.Unlock()

	for _, s := range b.sinks {
		s.Append(ev)
	}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// subscriber full, drop
		}
	}
}

// OpenGate marks a module gate open and logs the flip.
func (b *Bus) OpenGate(module string, ts time.Time) {
	b.mu.Lock()
	b.gates[module] = true
	b.mu.Unlock()
	b.Emit("GATE_OPEN", ts, map[string]any{"module": module})
}

// CloseGate marks a module gate closed and logs the flip.
func (b *Bus) CloseGate(module string, ts time.Time) {
	b.mu.Lock()
	b.gates[module] = false
	b.mu.Unlock()
	b.Emit("GATE_CLOSE", ts, map[string]any{"module": module})
}

// IsGateOpen reports a module gate's state. Unknown modules are closed.
func (b *Bus) IsGateOpen(module string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.gates[module]
}

// Initialized reports whether the bus is usable (for the validation report).
func (b *Bus) Initialized() bool {
	return b != nil && b.gates != nil
}

// Events returns a snapshot copy of the retained log.
func (b *Bus) Events() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Subscribe returns a buffered channel receiving every future event.
// Slow subscribers lose events rather than blocking the engine.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}
