package store

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/suite"

	"eventpay/internal/registration/models"
	"eventpay/pkg/platform/outbox"
	"eventpay/pkg/platform/sentinel"
	"eventpay/pkg/requestcontext"
	"eventpay/pkg/testutil"
)

// contractSuite runs the shared Store contract against one backend.
type contractSuite struct {
	suite.Suite
	open  func() (Store, outbox.Store)
	store Store
	ob    outbox.Store
	ctx   context.Context
}

func (s *contractSuite) SetupTest() {
	s.store, s.ob = s.open()
	s.ctx = context.Background()
}

func (s *contractSuite) change(prior *models.Aggregate, userID, paymentID string, events ...string) *models.Change {
	now := requestcontext.Now(s.ctx)
	agg := models.NewAggregate(userID, userID+"@example.com", now)
	if prior != nil {
		agg = prior.Clone()
	}
	expected := agg.Version
	in := models.Input{
		UserID:     userID,
		OrderID:    "order_" + paymentID,
		PaymentID:  paymentID,
		EventNames: events,
		Amount:     12000,
		Source:     models.SourceDirect,
		Trust:      models.TrustAuthoritative,
	}
	record := in.Record(now)
	agg.Apply(record, "", now)
	change, err := models.NewChange(agg, record, expected, now)
	s.Require().NoError(err)
	return change
}

func (s *contractSuite) pending() int64 {
	n, err := s.ob.CountPending(s.ctx)
	s.Require().NoError(err)
	return n
}

func (s *contractSuite) TestFindByUser_NotFound() {
	_, err := s.store.FindByUser(s.ctx, "nobody")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestSave_CreatesRegistration() {
	change := s.change(nil, "user-1", "pay_1", "Thesis Precised", "AlgoPulse")
	s.Require().NoError(s.store.Save(s.ctx, change))
	s.Equal(int64(1), change.Aggregate.Version)

	got, err := s.store.FindByUser(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(int64(1), got.Version)
	s.Equal("user-1@example.com", got.UserEmail)
	s.ElementsMatch([]string{"Thesis Precised", "AlgoPulse"}, got.Events)
	s.Require().Len(got.Payments, 1)
	s.Equal("pay_1", got.Payments[0].PaymentID)
	s.Equal("order_pay_1", got.Payments[0].OrderID)
	s.Equal(models.SourceDirect, got.Payments[0].Source)
	s.Equal(models.TrustAuthoritative, got.Payments[0].Trust)
	s.True(got.Payments[0].Verified)
	s.Equal(int64(1), s.pending())
}

func (s *contractSuite) TestSave_AppendsInOrder() {
	first := s.change(nil, "user-1", "pay_1", "AlgoPulse")
	s.Require().NoError(s.store.Save(s.ctx, first))

	current, err := s.store.FindByUser(s.ctx, "user-1")
	s.Require().NoError(err)
	second := s.change(current, "user-1", "pay_2", "Code Relay")
	s.Require().NoError(s.store.Save(s.ctx, second))

	got, err := s.store.FindByUser(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(int64(2), got.Version)
	s.ElementsMatch([]string{"AlgoPulse", "Code Relay"}, got.Events)
	s.Require().Len(got.Payments, 2)
	s.Equal("pay_1", got.Payments[0].PaymentID)
	s.Equal("pay_2", got.Payments[1].PaymentID)
	s.Equal(int64(2), s.pending())
}

func (s *contractSuite) TestSave_StaleVersionConflicts() {
	s.Require().NoError(s.store.Save(s.ctx, s.change(nil, "user-1", "pay_1", "AlgoPulse")))

	// Built from the empty state, so it expects version 0.
	stale := s.change(nil, "user-1", "pay_2", "Code Relay")
	s.ErrorIs(s.store.Save(s.ctx, stale), sentinel.ErrConflict)

	got, err := s.store.FindByUser(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(int64(1), got.Version)
	s.Len(got.Payments, 1)
	s.Equal(int64(1), s.pending(), "a rejected change must not publish")
}

func (s *contractSuite) TestSave_PaymentIDIsGloballyUnique() {
	s.Require().NoError(s.store.Save(s.ctx, s.change(nil, "user-1", "pay_1", "AlgoPulse")))

	err := s.store.Save(s.ctx, s.change(nil, "user-2", "pay_1", "AlgoPulse"))
	s.ErrorIs(err, sentinel.ErrPaymentRecorded)

	_, err = s.store.FindByUser(s.ctx, "user-2")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestSave_RejectsBrokenInvariants() {
	change := s.change(nil, "user-1", "pay_1", "AlgoPulse")
	change.Aggregate.Payments = append(change.Aggregate.Payments, change.Aggregate.Payments[0])
	s.Error(s.store.Save(s.ctx, change))

	_, err := s.store.FindByUser(s.ctx, "user-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestSave_ConcurrentWritersOneWins() {
	const writers = 8
	changes := make([]*models.Change, writers)
	for i := range changes {
		changes[i] = s.change(nil, "user-1", fmt.Sprintf("pay_%d", i), "AlgoPulse")
	}

	result := testutil.Race(writers, func(i int) error {
		return s.store.Save(s.ctx, changes[i])
	})
	s.Equal(1, result.Succeeded())
	s.Equal(writers-1, result.Count(sentinel.ErrConflict))
	s.Empty(result.Unexpected(sentinel.ErrConflict))

	got, err := s.store.FindByUser(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(int64(1), got.Version)
	s.Len(got.Payments, 1)
}

func (s *contractSuite) TestOutbox_PublishLifecycle() {
	s.Require().NoError(s.store.Save(s.ctx, s.change(nil, "user-1", "pay_1", "AlgoPulse")))

	entries, err := s.ob.FetchUnprocessed(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(models.EventTypeConfirmed, entries[0].EventType)
	s.Equal("user-1", entries[0].AggregateID)

	now := requestcontext.Now(s.ctx)
	s.Require().NoError(s.ob.MarkProcessed(s.ctx, entries[0].ID, now))
	s.Zero(s.pending())
	s.ErrorIs(s.ob.MarkProcessed(s.ctx, entries[0].ID, now), outbox.ErrNotPending)

	deleted, err := s.ob.DeleteProcessedBefore(s.ctx, now.Add(time.Second))
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)
}
