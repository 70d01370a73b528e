package events

import (
	"context"
	"sync"
)

// DeadLetterEntry is one captured dead-letter delivery.
type DeadLetterEntry struct {
	Event Event
	Error string
}

// MemoryBus is an in-process Publisher and DeadLetterSink used in tests and
// local development. It records everything published and can be told to fail
// specific event types.
type MemoryBus struct {
	mu          sync.Mutex
	published   []Event
	deadLetters []DeadLetterEntry
	failTypes   map[Type]bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{failTypes: make(map[Type]bool)}
}

// FailType makes future publishes of the given type report failure, for
// exercising the caller's degraded paths.
func (b *MemoryBus) FailType(t Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failTypes[t] = true
}

func (b *MemoryBus) Publish(_ context.Context, eventType Type, data map[string]any, source string, opts ...PublishOption) bool {
	var options publishOptions
	for _, opt := range opts {
		opt(&options)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failTypes[eventType] {
		return false
	}
	b.published = append(b.published, NewEvent(eventType, data, source, options.correlationID))
	return true
}

func (b *MemoryBus) DeadLetter(_ context.Context, event Event, cause error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadLetters = append(b.deadLetters, DeadLetterEntry{Event: event, Error: cause.Error()})
	return true
}

// Published returns a copy of everything published so far.
func (b *MemoryBus) Published() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event{}, b.published...)
}

// PublishedOfType filters published events by type.
func (b *MemoryBus) PublishedOfType(t Type) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, event := range b.published {
		if event.Type == t {
			out = append(out, event)
		}
	}
	return out
}

// DeadLetters returns a copy of captured dead-letter entries.
func (b *MemoryBus) DeadLetters() []DeadLetterEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DeadLetterEntry{}, b.deadLetters...)
}
