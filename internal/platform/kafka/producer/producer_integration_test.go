//go:build integration

package producer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"eventpay/internal/platform/kafka/producer"
	"eventpay/pkg/testutil/containers"
)

type ProducerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.Kafka
	producer *producer.Producer
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	s.kafka = containers.KafkaFor(s.T())

	cfg := producer.DefaultConfig(s.kafka.Brokers)
	cfg.DeliveryTimeout = 10 * time.Second
	prod, err := producer.New(cfg, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

func (s *ProducerIntegrationSuite) TestProduceDeliversWithHeaders() {
	ctx := context.Background()
	topic := "test-registration-confirmed"
	s.Require().NoError(s.kafka.EnsureTopic(ctx, topic))

	err := s.producer.Produce(ctx, &producer.Message{
		Topic:   topic,
		Key:     []byte("user-1"),
		Value:   []byte(`{"paymentId":"pay_1"}`),
		Headers: map[string]string{"event_type": "registration.confirmed"},
	})
	s.Require().NoError(err)

	consumer := s.kafka.Consumer(s.T(), "producer-test", topic)
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	record := containers.FirstMatch(waitCtx, consumer, func(r *kgo.Record) bool {
		return string(r.Key) == "user-1"
	})
	s.Require().NotNil(record)
	s.JSONEq(`{"paymentId":"pay_1"}`, string(record.Value))
	s.Require().Len(record.Headers, 1)
	s.Equal("event_type", record.Headers[0].Key)
	s.Equal("registration.confirmed", string(record.Headers[0].Value))
}

func (s *ProducerIntegrationSuite) TestHealthAndClose() {
	ctx := context.Background()
	s.NoError(s.producer.Health(ctx))

	prod, err := producer.New(producer.DefaultConfig(s.kafka.Brokers), nil)
	s.Require().NoError(err)
	s.Require().NoError(prod.Close())
	s.Error(prod.Health(ctx))
	s.Error(prod.Produce(ctx, &producer.Message{Topic: "x"}))
}
