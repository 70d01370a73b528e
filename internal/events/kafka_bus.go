package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"payerhub/internal/platform/kafka/producer"
	"payerhub/internal/platform/metrics"
)

// KafkaBus publishes events through the acknowledged Kafka producer. It is
// safe for concurrent use by multiple runs.
type KafkaBus struct {
	producer *producer.Producer
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewKafkaBus wires the bus. Metrics may be nil in tests.
func NewKafkaBus(p *producer.Producer, logger *slog.Logger, m *metrics.Metrics) *KafkaBus {
	return &KafkaBus{producer: p, logger: logger, metrics: m}
}

// Publish builds the envelope, routes it to the type's topic and waits for
// broker acknowledgment. Failures after retries are reported as false, never
// raised.
func (b *KafkaBus) Publish(ctx context.Context, eventType Type, data map[string]any, source string, opts ...PublishOption) bool {
	var options publishOptions
	for _, opt := range opts {
		opt(&options)
	}

	event := NewEvent(eventType, data, source, options.correlationID)

	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to encode event",
			"event_type", eventType,
			"error", err,
		)
		return false
	}

	var key []byte
	if options.partitionKey != "" {
		key = []byte(options.partitionKey)
	}

	if err := b.producer.Send(ctx, eventType.Topic(), key, payload); err != nil {
		b.logger.Error("failed to publish event",
			"event_id", event.EventID,
			"event_type", eventType,
			"topic", eventType.Topic(),
			"error", err,
		)
		if b.metrics != nil {
			b.metrics.PublishFailures.Inc()
		}
		return false
	}

	b.logger.Debug("published event",
		"event_id", event.EventID,
		"event_type", eventType,
		"topic", eventType.Topic(),
		"correlation_id", event.CorrelationID,
	)
	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(string(eventType)).Inc()
	}
	return true
}

// DeadLetter forwards a failed event with its error and a timestamp to the
// dead-letter topic, keyed like the original so per-document ordering holds
// there too.
func (b *KafkaBus) DeadLetter(ctx context.Context, event Event, cause error) bool {
	envelope := deadLetterEnvelope{
		OriginalEvent: event,
		Error:         cause.Error(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		b.logger.Error("failed to encode dead-letter envelope",
			"event_id", event.EventID,
			"error", err,
		)
		return false
	}
	if err := b.producer.Send(ctx, TopicDeadLetter, []byte(event.EventID), payload); err != nil {
		b.logger.Error("failed to publish to dead-letter topic",
			"event_id", event.EventID,
			"error", err,
		)
		return false
	}
	if b.metrics != nil {
		b.metrics.DeadLettered.Inc()
	}
	return true
}
