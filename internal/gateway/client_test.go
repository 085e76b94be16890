package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"eventpay/internal/gateway"
	"eventpay/internal/gateway/gatewaytest"
	"eventpay/pkg/platform/circuit"
)

type ClientSuite struct {
	suite.Suite
	fake *gatewaytest.Server
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.fake = gatewaytest.New()
}

func (s *ClientSuite) TearDownTest() {
	s.fake.Close()
}

func (s *ClientSuite) TestCreateAndFetchOrder() {
	client := s.fake.Client()
	ctx := context.Background()

	created, err := client.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:   12000,
		Currency: "INR",
		Receipt:  "rcpt_user_1_abc",
		Notes: gateway.Notes{
			gateway.NoteUserID:     "user_1",
			gateway.NoteUserEmail:  "a@example.com",
			gateway.NoteEventNames: "Thesis Precised,AlgoPulse",
		},
	})
	s.Require().NoError(err)
	s.NotEmpty(created.ID)
	s.Equal(int64(12000), created.Amount)
	s.Equal(gateway.OrderStatusCreated, created.Status)

	fetched, err := client.FetchOrder(ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.ID, fetched.ID)
	s.Equal("user_1", fetched.Notes.UserID())
	s.Equal("a@example.com", fetched.Notes.UserEmail())
	s.Equal([]string{"Thesis Precised", "AlgoPulse"}, fetched.Notes.EventNames())
}

func (s *ClientSuite) TestFetchOrder_NotFound() {
	_, err := s.fake.Client().FetchOrder(context.Background(), "order_missing")
	s.Require().Error(err)
	s.Equal(gateway.KindNotFound, gateway.KindOf(err))
	s.False(gateway.IsRetryable(err))

	var gerr *gateway.Error
	s.Require().True(errors.As(err, &gerr))
	s.Equal(http.StatusNotFound, gerr.StatusCode)
	s.Equal("BAD_REQUEST_ERROR", gerr.Code)
}

func (s *ClientSuite) TestFetchOrder_EmptyID() {
	_, err := s.fake.Client().FetchOrder(context.Background(), " ")
	s.Equal(gateway.KindRejected, gateway.KindOf(err))
	s.Equal(0, s.fake.FetchCalls())
}

func (s *ClientSuite) TestWrongCredentials() {
	client := gateway.New(s.fake.URL(), s.fake.KeyID, "wrong")
	_, err := client.FetchOrder(context.Background(), "order_1")
	s.Equal(gateway.KindAuth, gateway.KindOf(err))
}

func (s *ClientSuite) TestCreateOrder_Rejected() {
	_, err := s.fake.Client().CreateOrder(context.Background(), gateway.CreateOrderRequest{
		Amount: 12000, Currency: "INR", Receipt: "rcpt_0123456789_0123456789_0123456789_0123",
	})
	s.Equal(gateway.KindRejected, gateway.KindOf(err))
	s.False(gateway.IsRetryable(err))
}

func (s *ClientSuite) TestFetchOrder_Timeout() {
	s.fake.PutOrder(gateway.Order{ID: "order_slow", Amount: 100, Currency: "INR"})
	s.fake.DelayFetch(500 * time.Millisecond)

	client := s.fake.Client(gateway.WithTimeout(50 * time.Millisecond))
	_, err := client.FetchOrder(context.Background(), "order_slow")
	s.Equal(gateway.KindTimeout, gateway.KindOf(err))
	s.True(gateway.IsRetryable(err))
}

func (s *ClientSuite) TestBreakerOpensOnUpstreamFailures() {
	s.fake.PutOrder(gateway.Order{ID: "order_1", Amount: 100, Currency: "INR"})
	s.fake.FailFetch(http.StatusServiceUnavailable)

	breaker := circuit.New("gateway", circuit.Settings{Trips: 2})
	client := s.fake.Client(gateway.WithBreaker(breaker))
	ctx := context.Background()

	for range 2 {
		_, err := client.FetchOrder(ctx, "order_1")
		s.Equal(gateway.KindUnavailable, gateway.KindOf(err))
	}
	s.Equal(circuit.StateOpen, breaker.State())

	_, err := client.FetchOrder(ctx, "order_1")
	s.Equal(gateway.KindCircuitOpen, gateway.KindOf(err))
	s.ErrorIs(err, gateway.ErrCircuitOpen)
	s.Equal(2, s.fake.FetchCalls(), "open circuit must not reach the gateway")
}

func (s *ClientSuite) TestClientErrorsDoNotTripBreaker() {
	breaker := circuit.New("gateway", circuit.Settings{Trips: 1})
	client := s.fake.Client(gateway.WithBreaker(breaker))

	for range 3 {
		_, err := client.FetchOrder(context.Background(), "order_missing")
		s.Equal(gateway.KindNotFound, gateway.KindOf(err))
	}
	s.Equal(circuit.StateClosed, breaker.State())
}

func TestFetchOrder_EmptyNotesArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_x","amount":5000,"currency":"INR","status":"paid","notes":[],"created_at":1700000000}`))
	}))
	defer srv.Close()

	order, err := gateway.New(srv.URL, "k", "s").FetchOrder(context.Background(), "order_x")
	require.NoError(t, err)
	assert.Empty(t, order.Notes)
	assert.Empty(t, order.Notes.EventNames())
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), order.CreatedTime())
}

func TestFetchOrder_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := gateway.New(srv.URL, "k", "s").FetchOrder(context.Background(), "order_x")
	assert.Equal(t, gateway.KindBadResponse, gateway.KindOf(err))
}

func TestFetchOrder_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := gateway.New(url, "k", "s").FetchOrder(context.Background(), "order_x")
	assert.Equal(t, gateway.KindUnavailable, gateway.KindOf(err))
}
