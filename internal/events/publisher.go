package events

import "context"

// Publisher is the bus write side. Publish reports success as a boolean: the
// transport retries internally and a false return means retries were
// exhausted. Publishing never panics and never surfaces transport errors to
// pipeline code.
type Publisher interface {
	Publish(ctx context.Context, eventType Type, data map[string]any, source string, opts ...PublishOption) bool
}

// DeadLetterSink receives events whose handler processing failed, together
// with the cause, for later inspection or replay.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, event Event, cause error) bool
}

type publishOptions struct {
	correlationID string
	partitionKey  string
}

// PublishOption customizes a single publish.
type PublishOption func(*publishOptions)

// WithCorrelationID threads the run's correlation id through the event.
func WithCorrelationID(id string) PublishOption {
	return func(o *publishOptions) { o.correlationID = id }
}

// WithPartitionKey sets the broker partition key. The pipeline passes the
// document id so events for one document stay ordered.
func WithPartitionKey(key string) PublishOption {
	return func(o *publishOptions) { o.partitionKey = key }
}
