//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"eventpay/internal/gateway"
	"eventpay/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.Redis
	ctx   context.Context
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.RedisFor(s.T())
	s.ctx = context.Background()
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.Reset(s.ctx))
}

func (s *RedisCacheSuite) TestOrderRoundTrip() {
	c := NewRedisOrderCache(s.redis.Client, time.Hour)

	_, err := c.Get(s.ctx, "order_1")
	s.ErrorIs(err, ErrNotFound)

	s.Require().NoError(c.Put(s.ctx, &gateway.Order{
		ID:       "order_1",
		Amount:   12000,
		Currency: "INR",
		Notes: gateway.Notes{
			gateway.NoteUserID:     "user-1",
			gateway.NoteEventNames: "Thesis Precised",
		},
	}))

	got, err := c.Get(s.ctx, "order_1")
	s.Require().NoError(err)
	s.Equal(int64(12000), got.Amount)
	s.Equal("user-1", got.Notes.UserID())
	s.Equal([]string{"Thesis Precised"}, got.Notes.EventNames())

	ttl, err := s.redis.Client.TTL(s.ctx, redisOrderKeyPrefix+"order_1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 59*time.Minute)
}

func (s *RedisCacheSuite) TestDeliveryLog() {
	l := NewRedisDeliveryLog(s.redis.Client, time.Minute)

	seen, err := l.Seen(s.ctx, "evt_1")
	s.Require().NoError(err)
	s.False(seen)

	s.Require().NoError(l.Record(s.ctx, "evt_1"))
	seen, err = l.Seen(s.ctx, "evt_1")
	s.Require().NoError(err)
	s.True(seen)

	ttl, err := s.redis.Client.TTL(s.ctx, redisDeliveryKeyPrefix+"evt_1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 50*time.Second)
}
