package store

import (
	"context"
	"fmt"
	"sync"

	"eventpay/internal/registration/models"
	"eventpay/pkg/platform/outbox"
	outboxmemory "eventpay/pkg/platform/outbox/store/memory"
	"eventpay/pkg/platform/sentinel"
)

// InMemoryStore keeps registrations in process. A single mutex makes each
// Save a compare-and-swap on the user's version.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*models.Aggregate
	payments map[string]string // payment id -> user id
	outbox   *outboxmemory.Store
}

// NewInMemory constructs an empty store. Outbox entries go to ob, or to a
// private outbox when ob is nil.
func NewInMemory(ob *outboxmemory.Store) *InMemoryStore {
	if ob == nil {
		ob = outboxmemory.New()
	}
	return &InMemoryStore{
		users:    make(map[string]*models.Aggregate),
		payments: make(map[string]string),
		outbox:   ob,
	}
}

// Outbox exposes the entries written alongside registrations.
func (s *InMemoryStore) Outbox() outbox.Store {
	return s.outbox
}

func (s *InMemoryStore) FindByUser(_ context.Context, userID string) (*models.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return agg.Clone(), nil
}

func (s *InMemoryStore) Save(ctx context.Context, change *models.Change) error {
	if change == nil || change.Aggregate == nil {
		return fmt.Errorf("registration change is required")
	}
	if err := change.Aggregate.CheckInvariants(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userID := change.Aggregate.UserID
	var current int64
	if existing, ok := s.users[userID]; ok {
		current = existing.Version
	}
	if current != change.ExpectedVersion {
		return sentinel.ErrConflict
	}
	if _, used := s.payments[change.Payment.PaymentID]; used {
		return sentinel.ErrPaymentRecorded
	}

	for _, entry := range change.Outbox {
		if err := s.outbox.Append(ctx, entry); err != nil {
			return fmt.Errorf("append outbox entry: %w", err)
		}
	}

	stored := change.Aggregate.Clone()
	stored.Version = change.ExpectedVersion + 1
	s.users[userID] = stored
	s.payments[change.Payment.PaymentID] = userID
	change.Aggregate.Version = stored.Version
	return nil
}

// Len returns the number of stored registrations.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
