package replay

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventpay/internal/registration/models"
	regservice "eventpay/internal/registration/service"
	"eventpay/internal/registration/store"
	dErrors "eventpay/pkg/domain-errors"
)

const capturesYAML = `
captures:
  - userId: user-1
    userEmail: one@example.com
    orderId: order_1
    paymentId: pay_1
    eventNames: [Thesis Precised]
    amount: 12000
    authoritative: true
  - userId: user-1
    orderId: order_2
    paymentId: pay_2
    eventNames: [Code Relay, thesis precised]
    amount: 10000
  - userId: user-1
    orderId: order_1
    paymentId: pay_1
    eventNames: [Thesis Precised]
    amount: 12000
  - userId: user-2
    orderId: order_3
    paymentId: pay_3
    eventNames: []
`

func TestLoad(t *testing.T) {
	captures, err := Load(strings.NewReader(capturesYAML))
	require.NoError(t, err)
	require.Len(t, captures, 4)
	assert.True(t, captures[0].Authoritative)
	assert.Equal(t, []string{"Code Relay", "thesis precised"}, captures[1].EventNames)

	in := captures[1].Input()
	assert.Equal(t, models.SourceWebhook, in.Source)
	assert.Equal(t, models.TrustFallback, in.Trust)
	assert.Equal(t, models.TrustAuthoritative, captures[0].Input().Trust)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader("captures:\n  - userId: u\n    paymentIdd: p\n"))
	require.Error(t, err)
}

func TestLoadEmpty(t *testing.T) {
	captures, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, captures)
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	reconciler := regservice.New(store.NewInMemory(nil))
	captures, err := Load(strings.NewReader(capturesYAML))
	require.NoError(t, err)

	report, err := Run(ctx, reconciler, captures)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 1, report.Duplicates)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "pay_3", report.Failures[0].PaymentID)
	assert.True(t, dErrors.HasCode(report.Failures[0].Err, dErrors.CodeValidation))

	agg, err := reconciler.Registration(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Thesis Precised", "Code Relay"}, agg.Events)
	assert.Len(t, agg.Payments, 2)

	// A second run over the same file changes nothing.
	report, err = Run(ctx, reconciler, captures)
	require.NoError(t, err)
	assert.Zero(t, report.Applied)
	assert.Equal(t, 3, report.Duplicates)
}

func TestRunStopsWhenStoreUnavailable(t *testing.T) {
	reconciler := regservice.New(store.Unavailable{})
	captures, err := Load(strings.NewReader(capturesYAML))
	require.NoError(t, err)

	report, err := Run(context.Background(), reconciler, captures)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.Zero(t, report.Applied)
	assert.Empty(t, report.Failures)
}
