package redis

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPool struct{ stats redis.PoolStats }

func (p fixedPool) PoolStats() *redis.PoolStats { return &p.stats }

func TestPoolCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPoolCollector(fixedPool{redis.PoolStats{Hits: 7, Misses: 2, TotalConns: 4, IdleConns: 3}})
	require.NoError(t, reg.Register(c))

	expected := `
# HELP eventpay_redis_pool_hits_total Connections reused from the pool.
# TYPE eventpay_redis_pool_hits_total counter
eventpay_redis_pool_hits_total 7
# HELP eventpay_redis_pool_idle_conns Idle connections currently in the pool.
# TYPE eventpay_redis_pool_idle_conns gauge
eventpay_redis_pool_idle_conns 3
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"eventpay_redis_pool_hits_total", "eventpay_redis_pool_idle_conns")
	assert.NoError(t, err)
	assert.Equal(t, 6, testutil.CollectAndCount(c))
}
