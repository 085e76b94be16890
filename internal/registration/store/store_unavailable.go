package store

import (
	"context"
	"fmt"

	"eventpay/internal/registration/models"
	"eventpay/pkg/platform/sentinel"
)

// Unavailable is the store used when persistence is switched off. Every call
// fails with sentinel.ErrUnavailable so confirmations surface as retryable
// errors instead of silently dropping payments.
type Unavailable struct {
	Reason string
}

func (u Unavailable) err() error {
	if u.Reason == "" {
		return sentinel.ErrUnavailable
	}
	return fmt.Errorf("%s: %w", u.Reason, sentinel.ErrUnavailable)
}

func (u Unavailable) FindByUser(context.Context, string) (*models.Aggregate, error) {
	return nil, u.err()
}

func (u Unavailable) Save(context.Context, *models.Change) error {
	return u.err()
}
