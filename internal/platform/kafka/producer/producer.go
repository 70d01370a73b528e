package producer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	// ackTimeout bounds how long a single produce waits for broker
	// acknowledgment before the attempt counts as failed.
	ackTimeout = 10 * time.Second

	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
)

// Producer wraps a franz-go client configured for acknowledged, compressed
// produces. Sends are synchronous: the caller blocks until the broker acks
// or retries are exhausted.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

// New creates a producer connected to the given brokers.
func New(brokers []string, logger *slog.Logger) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.MaxProduceRequestsInflightPerBroker(1),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{client: client, logger: logger}, nil
}

// Send publishes one record and waits for acknowledgment. The underlying
// transport send is retried with exponential backoff; the error from the
// final attempt is returned once retries are exhausted.
func (p *Producer) Send(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, ackTimeout)
		err := p.client.ProduceSync(attemptCtx, record).FirstErr()
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		p.logger.Warn("kafka produce attempt failed",
			"topic", topic,
			"attempt", attempt,
			"error", err,
		)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("produce to %s after %d attempts: %w", topic, maxAttempts, lastErr)
}

// Client exposes the underlying kgo client for admin use.
func (p *Producer) Client() *kgo.Client {
	return p.client
}

// Close flushes buffered records and releases the client.
func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}
