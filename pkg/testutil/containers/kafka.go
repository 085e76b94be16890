//go:build integration

package containers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

type Kafka struct {
	Brokers string
}

func startKafka(ctx context.Context) (*Kafka, error) {
	container, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafka.WithClusterID("eventpay-test"),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}
	brokers, err := container.Brokers(ctx)
	if err != nil || len(brokers) == 0 {
		_ = testcontainers.TerminateContainer(container)
		return nil, fmt.Errorf("kafka brokers: %w", errors.Join(err, errors.New("no broker address")))
	}
	return &Kafka{Brokers: brokers[0]}, nil
}

// EnsureTopic creates a single-partition topic. An existing topic is fine.
func (k *Kafka) EnsureTopic(ctx context.Context, topic string) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(k.Brokers))
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := kadm.NewClient(client).CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil {
		return err
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return resp.Err
	}
	return nil
}

// Consumer reads topics from the earliest offset. It is closed when t ends.
func (k *Kafka) Consumer(t *testing.T, group string, topics ...string) *kgo.Client {
	t.Helper()
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.Brokers),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		t.Fatalf("kafka consumer: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// FirstMatch polls until a record satisfies match or ctx ends, in which
// case it returns nil.
func FirstMatch(ctx context.Context, client *kgo.Client, match func(*kgo.Record) bool) *kgo.Record {
	for ctx.Err() == nil {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		iter := fetches.RecordIter()
		for !iter.Done() {
			if r := iter.Next(); match(r) {
				return r
			}
		}
	}
	return nil
}
