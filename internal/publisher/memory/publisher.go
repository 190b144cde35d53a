// Package memory contains an in-memory event sink for tests.
package memory

import (
	"context"
	"sync"
)

// Sink stores emitted events for inspection.
type Sink struct {
	mu     sync.RWMutex
	events []EmittedEvent
}

// EmittedEvent captures one Emit call.
type EmittedEvent struct {
	Event   string
	Payload any
}

// New returns a memory Sink.
func New() *Sink {
	return &Sink{}
}

// Emit records the event.
func (s *Sink) Emit(_ context.Context, event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, EmittedEvent{Event: event, Payload: payload})
	return nil
}

// Events returns the recorded emits.
func (s *Sink) Events() []EmittedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EmittedEvent, len(s.events))
	copy(out, s.events)
	return out
}
