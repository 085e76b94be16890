//go:build integration

// Package containers starts the backing services integration tests need.
// Each service is started once per test binary and shared; Ryuk removes the
// containers when the process exits.
package containers

import (
	"context"
	"sync"
	"testing"
	"time"
)

const startTimeout = 2 * time.Minute

// lazy starts a resource on first use and replays the outcome afterwards,
// so a broken container fails every dependent suite fast instead of retrying.
type lazy[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (l *lazy[T]) get(t *testing.T, start func(ctx context.Context) (T, error)) T {
	t.Helper()
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		l.val, l.err = start(ctx)
	})
	if l.err != nil {
		t.Fatalf("start container: %v", l.err)
	}
	return l.val
}

var (
	sharedPostgres lazy[*Postgres]
	sharedKafka    lazy[*Kafka]
	sharedRedis    lazy[*Redis]
)

func PostgresFor(t *testing.T) *Postgres { return sharedPostgres.get(t, startPostgres) }

func KafkaFor(t *testing.T) *Kafka { return sharedKafka.get(t, startKafka) }

func RedisFor(t *testing.T) *Redis { return sharedRedis.get(t, startRedis) }
