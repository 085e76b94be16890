// Package cache holds the short-lived state that speeds up confirmations:
// orders captured at creation time and webhook delivery ids already handled.
// Neither is needed for correctness; the registration store remains the
// source of truth.
package cache

import (
	"context"
	"errors"

	"eventpay/internal/gateway"
)

// ErrNotFound is returned on a cache miss.
var ErrNotFound = errors.New("cache miss")

// OrderCache stores gateway orders by id. Orders are immutable once created,
// so entries never need invalidation, only expiry.
type OrderCache interface {
	Get(ctx context.Context, orderID string) (*gateway.Order, error)
	Put(ctx context.Context, order *gateway.Order) error
}

// DeliveryLog remembers, for the gateway's retry window, webhook deliveries
// whose payment is already stored. Ids are recorded only after the store
// accepted the payment, so a delivery that failed half way is never skipped.
type DeliveryLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID string) error
}
