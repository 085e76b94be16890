// Package store persists registration aggregates.
//
// Error contract shared by every backend:
//   - FindByUser returns sentinel.ErrNotFound when the user has no registration
//   - Save returns sentinel.ErrConflict when the stored version is not the expected one
//   - Save returns sentinel.ErrPaymentRecorded when the payment id is already recorded, for any user
//   - every call returns sentinel.ErrUnavailable (wrapped) when the backend cannot be reached
//
// Save commits the aggregate, the payment and the change's outbox entries atomically.
package store

import (
	"context"

	"eventpay/internal/registration/models"
)

type Store interface {
	FindByUser(ctx context.Context, userID string) (*models.Aggregate, error)
	Save(ctx context.Context, change *models.Change) error
}
