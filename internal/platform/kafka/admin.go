package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// EnsureTopics creates the given topics if they do not already exist.
// Topics get 3 partitions and 7 day retention; already-exists responses are
// not errors so startup stays idempotent.
func EnsureTopics(ctx context.Context, client *kgo.Client, topics []string) error {
	adm := kadm.NewClient(client)

	retention := "604800000" // 7 days in ms
	configs := map[string]*string{
		"retention.ms": &retention,
	}

	responses, err := adm.CreateTopics(ctx, 3, 1, configs, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, response := range responses.Sorted() {
		if response.Err != nil && !errors.Is(response.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", response.Topic, response.Err)
		}
	}
	return nil
}
