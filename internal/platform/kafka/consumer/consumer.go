package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one record delivered from Kafka, decoupled from the client
// library so handlers stay transport-agnostic.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes a single message. Returning an error does not stop the
// consumer loop; error handling (dead-lettering, logging) is the handler's
// responsibility so one bad message never stalls the stream.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consumer runs a Kafka consumer-group poll loop and feeds every record to a
// single handler. Delivery is at-least-once: offsets are committed after
// dispatch, so handlers must be idempotent per event id.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger
}

// New creates a consumer-group consumer over the given topics.
func New(brokers []string, group string, topics []string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.FetchMaxWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run polls until the context is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			msg := &Message{
				Topic:     record.Topic,
				Partition: record.Partition,
				Offset:    record.Offset,
				Key:       record.Key,
				Value:     record.Value,
				Timestamp: record.Timestamp,
			}
			if err := c.handler.Handle(ctx, msg); err != nil {
				// Handlers isolate their own failures; an error here means
				// the isolation path itself failed. Log and keep consuming.
				c.logger.Error("message handler error",
					"topic", msg.Topic,
					"offset", msg.Offset,
					"error", err,
				)
			}
		})
	}
}

// Close leaves the consumer group and releases the client.
func (c *Consumer) Close() {
	c.client.Close()
}
