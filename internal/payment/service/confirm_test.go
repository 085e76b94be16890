package service

//go:generate mockgen -source=confirm.go -destination=mocks/mocks.go -package=mocks Reconciler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"eventpay/internal/catalog"
	"eventpay/internal/gateway"
	"eventpay/internal/gateway/gatewaytest"
	"eventpay/internal/payment/cache"
	"eventpay/internal/payment/metrics"
	"eventpay/internal/payment/models"
	"eventpay/internal/payment/service/mocks"
	registration "eventpay/internal/registration/models"
	regservice "eventpay/internal/registration/service"
	"eventpay/internal/registration/store"
	dErrors "eventpay/pkg/domain-errors"
	"eventpay/pkg/platform/sentinel"
	pkgtestutil "eventpay/pkg/testutil"
)

type ConfirmerSuite struct {
	suite.Suite
	ctx        context.Context
	fake       *gatewaytest.Server
	store      *store.InMemoryStore
	reconciler *regservice.Reconciler
	metrics    *metrics.Metrics
	deliveries *cache.MemoryDeliveryLog
	orders     *OrderService
	confirmer  *Confirmer
}

func TestConfirmerSuite(t *testing.T) {
	suite.Run(t, new(ConfirmerSuite))
}

func (s *ConfirmerSuite) SetupTest() {
	s.ctx = context.Background()
	s.fake = gatewaytest.New()
	s.store = store.NewInMemory(nil)
	s.reconciler = regservice.New(s.store, regservice.WithMaxAttempts(20), regservice.WithBackoff(time.Millisecond))
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.deliveries = cache.NewMemoryDeliveryLog(time.Hour)

	client := s.fake.Client()
	// No shared order cache: confirmations must read orders back from the gateway.
	s.orders = NewOrderService(catalog.Default(), client)
	s.confirmer = s.newConfirmer(client)
}

func (s *ConfirmerSuite) TearDownTest() {
	s.fake.Close()
}

func (s *ConfirmerSuite) newConfirmer(reader OrderReader, opts ...ConfirmOption) *Confirmer {
	base := []ConfirmOption{
		WithConfirmOrderCache(cache.NewMemoryOrderCache(time.Hour)),
		WithDeliveryLog(s.deliveries),
		WithCatalog(catalog.Default()),
		WithConfirmMetrics(s.metrics),
		WithFetchTimeout(100 * time.Millisecond),
	}
	return NewConfirmer(s.reconciler, reader, Secrets{
		KeySecret:     s.fake.KeySecret,
		WebhookSecret: s.fake.WebhookSecret,
	}, append(base, opts...)...)
}

func (s *ConfirmerSuite) createOrder(userID string, events ...string) string {
	res, err := s.orders.CreateOrder(s.ctx, models.CreateOrderInput{
		UserID:     userID,
		UserEmail:  userID + "@example.com",
		EventNames: events,
	})
	s.Require().NoError(err)
	return res.OrderID
}

func (s *ConfirmerSuite) direct(orderID, paymentID, userID string, clientEvents ...string) models.DirectConfirmation {
	return models.DirectConfirmation{
		OrderID:    orderID,
		PaymentID:  paymentID,
		Signature:  s.fake.CheckoutSignature(orderID, paymentID),
		UserID:     userID,
		EventNames: clientEvents,
	}
}

func (s *ConfirmerSuite) aggregate(userID string) *registration.Aggregate {
	agg, err := s.reconciler.Registration(s.ctx, userID)
	s.Require().NoError(err)
	return agg
}

func (s *ConfirmerSuite) TestDirect_UsesOrderNotesNotClientList() {
	orderID := s.createOrder("user-1", "Thesis Precised")

	res, err := s.confirmer.ConfirmDirect(s.ctx, s.direct(orderID, "pay_1", "user-1", "Thesis Precised", "Design Sprint"))
	s.Require().NoError(err)
	s.False(res.AlreadyProcessed)
	s.Equal(registration.TrustAuthoritative, res.Trust)
	s.Equal([]string{"Thesis Precised"}, res.RegisteredEvents)

	agg := s.aggregate("user-1")
	s.Equal([]string{"Thesis Precised"}, agg.Events)
	s.Equal("user-1@example.com", agg.UserEmail)
	s.Require().Len(agg.Payments, 1)
	s.Equal(int64(12000), agg.Payments[0].Amount)
	s.Equal(registration.SourceDirect, agg.Payments[0].Source)
}

func (s *ConfirmerSuite) TestDirect_InvalidSignatureChangesNothing() {
	orderID := s.createOrder("user-1", "Thesis Precised")
	in := s.direct(orderID, "pay_1", "user-1")
	in.Signature = s.fake.CheckoutSignature(orderID, "pay_other")

	_, err := s.confirmer.ConfirmDirect(s.ctx, in)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
	s.Zero(s.store.Len())
	s.Zero(s.fake.FetchCalls(), "signature is checked before any lookup")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SignatureFailures.WithLabelValues("direct")))
}

func (s *ConfirmerSuite) TestDirect_MissingFields() {
	for _, in := range []models.DirectConfirmation{
		{PaymentID: "pay_1", Signature: "aa", UserID: "user-1"},
		{OrderID: "order_1", Signature: "aa", UserID: "user-1"},
		{OrderID: "order_1", PaymentID: "pay_1", UserID: "user-1"},
		{OrderID: "order_1", PaymentID: "pay_1", Signature: "aa"},
	} {
		_, err := s.confirmer.ConfirmDirect(s.ctx, in)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	}
}

func (s *ConfirmerSuite) TestDirect_FallsBackToClientListWhenGatewayDown() {
	orderID := s.createOrder("user-1", "Thesis Precised")
	s.fake.FailFetch(http.StatusServiceUnavailable)

	res, err := s.confirmer.ConfirmDirect(s.ctx, s.direct(orderID, "pay_1", "user-1", "thesis-precised", "Unknown Party"))
	s.Require().NoError(err)
	s.Equal(registration.TrustFallback, res.Trust)
	s.Equal([]string{"Thesis Precised"}, res.RegisteredEvents)

	agg := s.aggregate("user-1")
	s.Require().Len(agg.Payments, 1)
	s.Equal(registration.TrustFallback, agg.Payments[0].Trust)
	s.Equal(int64(12000), agg.Payments[0].Amount, "fallback records carry the catalog price")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.TrustedEvents.WithLabelValues("direct", "fallback")))
}

func (s *ConfirmerSuite) TestDirect_FallsBackOnFetchTimeout() {
	orderID := s.createOrder("user-1", "Code Relay")
	s.fake.DelayFetch(time.Second)

	start := time.Now()
	res, err := s.confirmer.ConfirmDirect(s.ctx, s.direct(orderID, "pay_1", "user-1", "Code Relay"))
	s.Require().NoError(err)
	s.Equal(registration.TrustFallback, res.Trust)
	s.Less(time.Since(start), time.Second)
}

func (s *ConfirmerSuite) TestDirect_NoEventsAnywhere() {
	orderID := s.createOrder("user-1", "Code Relay")
	s.fake.FailFetch(http.StatusServiceUnavailable)

	_, err := s.confirmer.ConfirmDirect(s.ctx, s.direct(orderID, "pay_1", "user-1"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Zero(s.store.Len())
}

func (s *ConfirmerSuite) TestDirect_ReadableOrderWithoutEvents() {
	s.fake.PutOrder(gateway.Order{
		ID: "order_cheap", Amount: 100, Currency: "INR",
		Notes: gateway.Notes{gateway.NoteUserID: "owner"},
	})

	_, err := s.confirmer.ConfirmDirect(s.ctx, s.direct("order_cheap", "pay_1", "mallory", "Design Sprint", "Thesis Precised"))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.confirmer.ConfirmDirect(s.ctx, s.direct("order_cheap", "pay_1", "owner", "Design Sprint", "Thesis Precised"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Zero(s.store.Len())
	s.Zero(testutil.ToFloat64(s.metrics.TrustedEvents.WithLabelValues("direct", "fallback")))
}

func (s *ConfirmerSuite) TestDirect_OrderOwnedByAnotherUser() {
	orderID := s.createOrder("user-1", "Code Relay")

	_, err := s.confirmer.ConfirmDirect(s.ctx, s.direct(orderID, "pay_1", "user-2", "Code Relay"))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Zero(s.store.Len())
}

func (s *ConfirmerSuite) TestDirect_CachedOrderSkipsGateway() {
	shared := cache.NewMemoryOrderCache(time.Hour)
	orders := NewOrderService(catalog.Default(), s.fake.Client(), WithOrderCache(shared))
	res, err := orders.CreateOrder(s.ctx, models.CreateOrderInput{UserID: "user-1", EventNames: []string{"Quiz Quest"}})
	s.Require().NoError(err)

	confirmer := s.newConfirmer(s.fake.Client(), WithConfirmOrderCache(shared))
	_, err = confirmer.ConfirmDirect(s.ctx, s.direct(res.OrderID, "pay_1", "user-1"))
	s.Require().NoError(err)
	s.Zero(s.fake.FetchCalls())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.OrderCacheLookups.WithLabelValues("hit")))
}

// The client confirms first, then the webhook for the same payment arrives:
// the payment is recorded once and the webhook is acknowledged as a duplicate.
func (s *ConfirmerSuite) TestDirectThenWebhook() {
	orderID := s.createOrder("user-1", "Thesis Precised")

	res, err := s.confirmer.ConfirmDirect(s.ctx, s.direct(orderID, "pay_1", "user-1"))
	s.Require().NoError(err)
	s.False(res.AlreadyProcessed)

	delivery, err := s.fake.Captured(orderID, "pay_1")
	s.Require().NoError(err)
	outcome, err := s.confirmer.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.Require().NoError(err)
	s.Equal(models.WebhookDuplicate, outcome)

	agg := s.aggregate("user-1")
	s.Len(agg.Payments, 1)
	s.Equal([]string{"Thesis Precised"}, agg.Events)
	s.Equal(int64(1), agg.Version)
}

func (s *ConfirmerSuite) TestWebhookThenDirect() {
	orderID := s.createOrder("user-1", "Design Sprint")

	delivery, err := s.fake.Captured(orderID, "pay_1")
	s.Require().NoError(err)
	outcome, err := s.confirmer.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.Require().NoError(err)
	s.Equal(models.WebhookProcessed, outcome)

	res, err := s.confirmer.ConfirmDirect(s.ctx, s.direct(orderID, "pay_1", "user-1"))
	s.Require().NoError(err)
	s.True(res.AlreadyProcessed)
	s.Equal([]string{"Design Sprint"}, res.RegisteredEvents)
	s.Len(s.aggregate("user-1").Payments, 1)
}

func (s *ConfirmerSuite) TestBothChannelsRacing() {
	orderID := s.createOrder("user-1", "Thesis Precised", "Code Relay")
	delivery, err := s.fake.Captured(orderID, "pay_1")
	s.Require().NoError(err)

	result := pkgtestutil.Race(6, func(i int) error {
		if i%2 == 0 {
			_, err := s.confirmer.ConfirmDirect(s.ctx, s.direct(orderID, "pay_1", "user-1"))
			return err
		}
		_, err := s.confirmer.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, "")
		return err
	})
	s.Equal(6, result.Succeeded())

	agg := s.aggregate("user-1")
	s.Len(agg.Payments, 1)
	s.ElementsMatch([]string{"Thesis Precised", "Code Relay"}, agg.Events)
}

func (s *ConfirmerSuite) TestWebhook_InvalidSignature() {
	orderID := s.createOrder("user-1", "Code Relay")
	delivery, err := s.fake.Captured(orderID, "pay_1")
	s.Require().NoError(err)

	_, err = s.confirmer.HandleWebhook(s.ctx, delivery.Body, "deadbeef", delivery.EventID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
	s.Zero(s.store.Len())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SignatureFailures.WithLabelValues("webhook")))
}

func (s *ConfirmerSuite) TestWebhook_IgnoresOtherEvents() {
	d := s.fake.SignBody([]byte(`{"entity":"event","event":"payment.authorized","payload":{}}`))
	outcome, err := s.confirmer.HandleWebhook(s.ctx, d.Body, d.Signature, d.EventID)
	s.Require().NoError(err)
	s.Equal(models.WebhookIgnored, outcome)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.WebhookEvents.WithLabelValues("payment.authorized", "ignored")))
}

func (s *ConfirmerSuite) TestWebhook_RejectsMalformedPayloads() {
	for _, body := range []string{
		`not json`,
		`{"event":"payment.captured","payload":{}}`,
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1"}}}}`,
	} {
		d := s.fake.SignBody([]byte(body))
		outcome, err := s.confirmer.HandleWebhook(s.ctx, d.Body, d.Signature, d.EventID)
		s.Require().NoError(err)
		s.Equal(models.WebhookRejected, outcome, body)
	}
	s.Zero(s.store.Len())
}

func (s *ConfirmerSuite) TestWebhook_RedeliveryDedupedByEventID() {
	orderID := s.createOrder("user-1", "Code Relay")
	delivery, err := s.fake.Captured(orderID, "pay_1")
	s.Require().NoError(err)

	outcome, err := s.confirmer.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.Require().NoError(err)
	s.Equal(models.WebhookProcessed, outcome)
	fetches := s.fake.FetchCalls()

	outcome, err = s.confirmer.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.Require().NoError(err)
	s.Equal(models.WebhookDuplicate, outcome)
	s.Equal(fetches, s.fake.FetchCalls(), "known deliveries short-circuit")
}

func (s *ConfirmerSuite) TestWebhook_UsesPaymentNotesWhenOrderUnreadable() {
	orderID := s.createOrder("user-1", "Design Sprint")
	delivery, err := s.fake.Captured(orderID, "pay_1")
	s.Require().NoError(err)
	s.fake.FailFetch(http.StatusInternalServerError)

	outcome, err := s.confirmer.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.Require().NoError(err)
	s.Equal(models.WebhookProcessed, outcome)
	s.Equal([]string{"Design Sprint"}, s.aggregate("user-1").Events)
}

func (s *ConfirmerSuite) TestWebhook_RejectsWhenNoUserAnywhere() {
	s.fake.PutOrder(gateway.Order{ID: "order_orphan", Amount: 5000, Currency: "INR"})
	delivery, err := s.fake.Captured("order_orphan", "pay_1")
	s.Require().NoError(err)

	outcome, err := s.confirmer.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.Require().NoError(err)
	s.Equal(models.WebhookRejected, outcome)
}

func (s *ConfirmerSuite) TestWebhook_TransientFailureAsksForRedelivery() {
	orderID := s.createOrder("user-1", "Code Relay")
	delivery, err := s.fake.Captured(orderID, "pay_1")
	s.Require().NoError(err)

	down := NewConfirmer(regservice.New(store.Unavailable{}), s.fake.Client(),
		Secrets{KeySecret: s.fake.KeySecret, WebhookSecret: s.fake.WebhookSecret},
		WithDeliveryLog(s.deliveries))

	_, err = down.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	// Nothing was recorded for the delivery, so the redelivery is processed once the store is back.
	outcome, err := s.confirmer.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.Require().NoError(err)
	s.Equal(models.WebhookProcessed, outcome)
}

// failingOnce fails the first Save with an error the store does not classify.
type failingOnce struct {
	*store.InMemoryStore
	failed bool
}

func (f *failingOnce) Save(ctx context.Context, change *registration.Change) error {
	if !f.failed {
		f.failed = true
		return errors.New("deadlock detected")
	}
	return f.InMemoryStore.Save(ctx, change)
}

func (s *ConfirmerSuite) TestWebhook_UnclassifiedStoreErrorIsRedelivered() {
	orderID := s.createOrder("user-1", "Code Relay")
	delivery, err := s.fake.Captured(orderID, "pay_1")
	s.Require().NoError(err)

	flaky := &failingOnce{InMemoryStore: s.store}
	confirmer := s.newConfirmer(s.fake.Client())
	confirmer.reconciler = regservice.New(flaky)

	_, err = confirmer.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Zero(s.store.Len())

	outcome, err := confirmer.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.Require().NoError(err)
	s.Equal(models.WebhookProcessed, outcome)
	s.Equal([]string{"Code Relay"}, s.aggregate("user-1").Events)
}

func (s *ConfirmerSuite) TestWebhook_DeliveryRecordedOnlyAfterStore() {
	orderID := s.createOrder("user-1", "Code Relay")
	delivery, err := s.fake.Captured(orderID, "pay_1")
	s.Require().NoError(err)

	down := s.newConfirmer(s.fake.Client())
	down.reconciler = regservice.New(store.Unavailable{})
	_, err = down.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.Require().Error(err)

	seen, err := s.deliveries.Seen(s.ctx, delivery.EventID)
	s.Require().NoError(err)
	s.False(seen)

	outcome, err := s.confirmer.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.Require().NoError(err)
	s.Equal(models.WebhookProcessed, outcome)
	seen, err = s.deliveries.Seen(s.ctx, delivery.EventID)
	s.Require().NoError(err)
	s.True(seen)
}

// ctxCheckingLog records the context state seen by Record.
type ctxCheckingLog struct {
	*cache.MemoryDeliveryLog
	recordErr error
}

func (l *ctxCheckingLog) Record(ctx context.Context, eventID string) error {
	l.recordErr = ctx.Err()
	return l.MemoryDeliveryLog.Record(ctx, eventID)
}

func (s *ConfirmerSuite) TestWebhook_RecordSurvivesCancelledRequest() {
	orderID := s.createOrder("user-1", "Code Relay")
	delivery, err := s.fake.Captured(orderID, "pay_1")
	s.Require().NoError(err)

	log := &ctxCheckingLog{MemoryDeliveryLog: cache.NewMemoryDeliveryLog(time.Hour)}
	confirmer := s.newConfirmer(s.fake.Client(), WithDeliveryLog(log))

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	outcome, err := confirmer.HandleWebhook(ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.Require().NoError(err)
	s.Equal(models.WebhookProcessed, outcome)
	s.NoError(log.recordErr)

	seen, err := log.Seen(s.ctx, delivery.EventID)
	s.Require().NoError(err)
	s.True(seen)
}

type ConfirmerMockSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	reconciler *mocks.MockReconciler
	fake       *gatewaytest.Server
	confirmer  *Confirmer
	ctx        context.Context
}

func TestConfirmerMockSuite(t *testing.T) {
	suite.Run(t, new(ConfirmerMockSuite))
}

func (s *ConfirmerMockSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.reconciler = mocks.NewMockReconciler(s.ctrl)
	s.fake = gatewaytest.New()
	s.fake.PutOrder(gateway.Order{
		ID: "order_1", Amount: 12000, Currency: "INR",
		Notes: gateway.Notes{gateway.NoteUserID: "user-1", gateway.NoteEventNames: "Thesis Precised"},
	})
	s.confirmer = NewConfirmer(s.reconciler, s.fake.Client(), Secrets{KeySecret: s.fake.KeySecret, WebhookSecret: s.fake.WebhookSecret})
	s.ctx = context.Background()
}

func (s *ConfirmerMockSuite) TearDownTest() {
	s.fake.Close()
}

func (s *ConfirmerMockSuite) TestReconcileFailureIsPartialFailure() {
	s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in registration.Input) (*registration.Result, error) {
			s.Equal(registration.SourceDirect, in.Source)
			s.Equal(registration.TrustAuthoritative, in.Trust)
			s.Equal([]string{"Thesis Precised"}, in.EventNames)
			s.Equal(int64(12000), in.Amount)
			return nil, dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "reconciliation conflict: retries exhausted")
		})

	_, err := s.confirmer.ConfirmDirect(s.ctx, models.DirectConfirmation{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: s.fake.CheckoutSignature("order_1", "pay_1"),
		UserID:    "user-1",
	})

	var partial *models.PartialFailureError
	s.Require().True(errors.As(err, &partial))
	s.Equal("pay_1", partial.PaymentID)
	s.Equal("order_1", partial.OrderID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ConfirmerMockSuite) TestWebhookValidationFailureIsAcknowledged() {
	s.reconciler.EXPECT().Reconcile(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeValidation, "invalid source"))

	delivery, err := s.fake.Captured("order_1", "pay_1")
	s.Require().NoError(err)
	outcome, err := s.confirmer.HandleWebhook(s.ctx, delivery.Body, delivery.Signature, delivery.EventID)
	s.Require().NoError(err)
	s.Equal(models.WebhookRejected, outcome)
}
