package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"eventpay/internal/gateway"
)

const (
	redisOrderKeyPrefix    = "eventpay:order:"
	redisDeliveryKeyPrefix = "eventpay:webhook:delivery:"
)

// RedisOrderCache persists orders in Redis with TTL-based eviction.
type RedisOrderCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisOrderCache(client redis.UniversalClient, ttl time.Duration) *RedisOrderCache {
	return &RedisOrderCache{client: client, ttl: ttl}
}

func (c *RedisOrderCache) Get(ctx context.Context, orderID string) (*gateway.Order, error) {
	data, err := c.client.Get(ctx, redisOrderKeyPrefix+orderID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find order cache: %w", err)
	}
	var order gateway.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("decode order cache: %w", err)
	}
	return &order, nil
}

func (c *RedisOrderCache) Put(ctx context.Context, order *gateway.Order) error {
	if order == nil || order.ID == "" {
		return nil
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order cache: %w", err)
	}
	if err := c.client.Set(ctx, redisOrderKeyPrefix+order.ID, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("save order cache: %w", err)
	}
	return nil
}

// RedisDeliveryLog keeps one expiring key per applied delivery.
type RedisDeliveryLog struct {
	client redis.UniversalClient
	window time.Duration
}

func NewRedisDeliveryLog(client redis.UniversalClient, window time.Duration) *RedisDeliveryLog {
	return &RedisDeliveryLog{client: client, window: window}
}

func (l *RedisDeliveryLog) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := l.client.Exists(ctx, redisDeliveryKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("look up webhook delivery: %w", err)
	}
	return n > 0, nil
}

func (l *RedisDeliveryLog) Record(ctx context.Context, eventID string) error {
	if err := l.client.Set(ctx, redisDeliveryKeyPrefix+eventID, time.Now().Unix(), l.window).Err(); err != nil {
		return fmt.Errorf("record webhook delivery: %w", err)
	}
	return nil
}
