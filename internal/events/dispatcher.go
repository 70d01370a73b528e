package events

import (
	"context"
	"log/slog"

	"payerhub/internal/platform/kafka/consumer"
)

// Handler processes one decoded event.
type Handler interface {
	HandleEvent(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Routes maps each event type to its handlers. The table is fixed at
// construction; there is no registration after startup.
type Routes map[Type][]Handler

// Dispatcher decodes consumed records and fans each event out to the
// handlers for its type. A failing handler sends the event to the
// dead-letter sink and the stream continues; one bad handler never stalls
// or drops consumption. Duplicate deliveries are skipped per event id.
type Dispatcher struct {
	routes Routes
	dlq    DeadLetterSink
	seen   IdempotencyCache
	logger *slog.Logger
}

func NewDispatcher(routes Routes, dlq DeadLetterSink, seen IdempotencyCache, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{routes: routes, dlq: dlq, seen: seen, logger: logger}
}

// Handle implements consumer.Handler. It always returns nil: malformed
// messages are logged and committed, handler failures are dead-lettered.
func (d *Dispatcher) Handle(ctx context.Context, msg *consumer.Message) error {
	event, err := Unmarshal(msg.Value)
	if err != nil {
		// Malformed messages must not block the partition.
		d.logger.Error("dropping undecodable message",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	if d.seen != nil {
		duplicate, err := d.seen.Seen(ctx, event.EventID)
		if err != nil {
			// Cache outage degrades to at-least-once, which handlers
			// already tolerate.
			d.logger.Warn("idempotency cache unavailable, processing anyway",
				"event_id", event.EventID,
				"error", err,
			)
		} else if duplicate {
			d.logger.Debug("skipping duplicate delivery", "event_id", event.EventID)
			return nil
		}
	}

	d.dispatch(ctx, event)
	return nil
}

// DispatchEvent runs an already-decoded event through the table. Used by the
// in-memory bus path and tests.
func (d *Dispatcher) DispatchEvent(ctx context.Context, event Event) {
	d.dispatch(ctx, event)
}

func (d *Dispatcher) dispatch(ctx context.Context, event Event) {
	handlers := d.routes[event.Type]
	if len(handlers) == 0 {
		d.logger.Debug("no handlers for event type",
			"event_type", event.Type,
			"event_id", event.EventID,
		)
		return
	}
	for _, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			d.logger.Error("event handler failed",
				"event_id", event.EventID,
				"event_type", event.Type,
				"error", err,
			)
			d.dlq.DeadLetter(ctx, event, err)
		}
	}
}
