package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"eventpay/internal/registration/models"
	"eventpay/pkg/platform/outbox"
	outboxmemory "eventpay/pkg/platform/outbox/store/memory"
	"eventpay/pkg/platform/sentinel"
)

func TestInMemoryStoreContract(t *testing.T) {
	suite.Run(t, &contractSuite{open: func() (Store, outbox.Store) {
		st := NewInMemory(nil)
		return st, st.Outbox()
	}})
}

func TestInMemoryStore_SharedOutbox(t *testing.T) {
	ob := outboxmemory.New()
	st := NewInMemory(ob)
	assert.Same(t, ob, st.Outbox())
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	st := NewInMemory(nil)
	s := &contractSuite{}
	s.SetT(t)
	s.ctx = ctx
	require.NoError(t, st.Save(ctx, s.change(nil, "user-1", "pay_1", "AlgoPulse")))

	got, err := st.FindByUser(ctx, "user-1")
	require.NoError(t, err)
	got.Events[0] = "mutated"
	got.Payments = append(got.Payments, models.PaymentRecord{PaymentID: "pay_x"})

	again, err := st.FindByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"AlgoPulse"}, again.Events)
	assert.Len(t, again.Payments, 1)
	assert.Equal(t, 1, st.Len())
}

func TestUnavailableStore(t *testing.T) {
	ctx := context.Background()
	var st Store = Unavailable{Reason: "persistence disabled"}

	_, err := st.FindByUser(ctx, "user-1")
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Contains(t, err.Error(), "persistence disabled")
	assert.ErrorIs(t, st.Save(ctx, &models.Change{}), sentinel.ErrUnavailable)
}
