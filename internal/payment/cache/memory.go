package cache

import (
	"context"
	"sync"
	"time"

	"eventpay/internal/gateway"
)

type memoryEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// MemoryOrderCache is an in-process OrderCache with TTL expiry on read.
type MemoryOrderCache struct {
	mu     sync.RWMutex
	orders map[string]memoryEntry[gateway.Order]
	ttl    time.Duration
	now    func() time.Time
}

func NewMemoryOrderCache(ttl time.Duration) *MemoryOrderCache {
	return &MemoryOrderCache{
		orders: make(map[string]memoryEntry[gateway.Order]),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (c *MemoryOrderCache) Get(_ context.Context, orderID string) (*gateway.Order, error) {
	c.mu.RLock()
	entry, ok := c.orders[orderID]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, ErrNotFound
	}
	order := entry.value
	order.Notes = cloneNotes(entry.value.Notes)
	return &order, nil
}

func (c *MemoryOrderCache) Put(_ context.Context, order *gateway.Order) error {
	if order == nil || order.ID == "" {
		return nil
	}
	stored := *order
	stored.Notes = cloneNotes(order.Notes)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpired()
	c.orders[order.ID] = memoryEntry[gateway.Order]{value: stored, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryOrderCache) evictExpired() {
	now := c.now()
	for id, e := range c.orders {
		if !now.Before(e.expiresAt) {
			delete(c.orders, id)
		}
	}
}

// MemoryDeliveryLog is an in-process DeliveryLog.
type MemoryDeliveryLog struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

func NewMemoryDeliveryLog(window time.Duration) *MemoryDeliveryLog {
	return &MemoryDeliveryLog{
		seen:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

func (l *MemoryDeliveryLog) Seen(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	expiresAt, ok := l.seen[eventID]
	if ok && !l.now().Before(expiresAt) {
		delete(l.seen, eventID)
		return false, nil
	}
	return ok, nil
}

func (l *MemoryDeliveryLog) Record(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[eventID] = l.now().Add(l.window)
	return nil
}

func cloneNotes(n gateway.Notes) gateway.Notes {
	if n == nil {
		return nil
	}
	out := make(gateway.Notes, len(n))
	for k, v := range n {
		out[k] = v
	}
	return out
}
