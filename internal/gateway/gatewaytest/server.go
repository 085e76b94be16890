// Package gatewaytest runs an in-process fake of the payment gateway's order
// API and builds signed checkout callbacks and webhook deliveries against it.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"eventpay/internal/gateway"
	"eventpay/internal/gateway/signature"
)

const (
	DefaultKeyID         = "rzp_test_key"
	DefaultKeySecret     = "rzp_test_secret"
	DefaultWebhookSecret = "rzp_test_webhook"
)

// Server is a fake gateway. Zero faults means every request succeeds.
type Server struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string

	srv *httptest.Server

	mu          sync.Mutex
	orders      map[string]*gateway.Order
	fetchFault  int
	createFault int
	fetchDelay  time.Duration

	seq         atomic.Int64
	createCalls atomic.Int64
	fetchCalls  atomic.Int64
}

// New starts a fake gateway. Call Close when done.
func New() *Server {
	s := &Server{
		KeyID:         DefaultKeyID,
		KeySecret:     DefaultKeySecret,
		WebhookSecret: DefaultWebhookSecret,
		orders:        make(map[string]*gateway.Order),
	}
	r := chi.NewRouter()
	r.Post("/v1/orders", s.handleCreate)
	r.Get("/v1/orders/{id}", s.handleFetch)
	s.srv = httptest.NewServer(r)
	return s
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) Close() { s.srv.Close() }

// Healthy reports an error while any fault is injected, so probes built on
// it reflect the scenario's gateway state.
func (s *Server) Healthy(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchFault != 0 || s.createFault != 0 {
		return fmt.Errorf("fake gateway failing: fetch=%d create=%d", s.fetchFault, s.createFault)
	}
	return nil
}

// Client returns a gateway client pointed at the fake with matching credentials.
func (s *Server) Client(opts ...gateway.Option) *gateway.Client {
	return gateway.New(s.URL(), s.KeyID, s.KeySecret, opts...)
}

// FailCreate makes every order creation answer with status until reset with 0.
func (s *Server) FailCreate(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createFault = status
}

// FailFetch makes every order fetch answer with status until reset with 0.
func (s *Server) FailFetch(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchFault = status
}

// DelayFetch holds order fetches for d before answering.
func (s *Server) DelayFetch(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchDelay = d
}

func (s *Server) CreateCalls() int { return int(s.createCalls.Load()) }

func (s *Server) FetchCalls() int { return int(s.fetchCalls.Load()) }

// Order returns a copy of a stored order.
func (s *Server) Order(id string) (*gateway.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, false
	}
	cp := *o
	cp.Notes = copyNotes(o.Notes)
	return &cp, true
}

// PutOrder seeds an order directly, bypassing the API.
func (s *Server) PutOrder(o gateway.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Status == "" {
		o.Status = gateway.OrderStatusCreated
	}
	o.Notes = copyNotes(o.Notes)
	s.orders[o.ID] = &o
}

// MarkPaid flips an order to paid as the gateway does on capture.
func (s *Server) MarkPaid(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		o.Status = gateway.OrderStatusPaid
		o.AmountPaid = o.Amount
		o.AmountDue = 0
		o.Attempts++
	}
}

// CheckoutSignature is what the checkout widget hands back to the client.
func (s *Server) CheckoutSignature(orderID, paymentID string) string {
	return signature.Sign(signature.PaymentPayload(orderID, paymentID), s.KeySecret)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.createCalls.Add(1)
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "BAD_REQUEST_ERROR", "Authentication failed")
		return
	}

	s.mu.Lock()
	fault := s.createFault
	s.mu.Unlock()
	if fault != 0 {
		writeError(w, fault, "SERVER_ERROR", "injected failure")
		return
	}

	var req gateway.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "invalid body")
		return
	}
	switch {
	case req.Amount < 100:
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "The amount must be atleast INR 1.00")
		return
	case len(req.Receipt) > gateway.MaxReceiptLength:
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "receipt: the length must be no more than 40.")
		return
	case req.Currency == "":
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", "The currency field is required.")
		return
	}

	order := &gateway.Order{
		ID:        fmt.Sprintf("order_test%06d", s.seq.Add(1)),
		Entity:    "order",
		Amount:    req.Amount,
		AmountDue: req.Amount,
		Currency:  req.Currency,
		Receipt:   req.Receipt,
		Status:    gateway.OrderStatusCreated,
		Notes:     copyNotes(req.Notes),
		CreatedAt: time.Now().Unix(),
	}
	s.mu.Lock()
	s.orders[order.ID] = order
	resp := *order
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, &resp)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.fetchCalls.Add(1)
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "BAD_REQUEST_ERROR", "Authentication failed")
		return
	}

	s.mu.Lock()
	fault, delay := s.fetchFault, s.fetchDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if fault != 0 {
		writeError(w, fault, "SERVER_ERROR", "injected failure")
		return
	}

	order, ok := s.Order(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "BAD_REQUEST_ERROR", "The id provided does not exist")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) authorized(r *http.Request) bool {
	id, secret, ok := r.BasicAuth()
	return ok && id == s.KeyID && secret == s.KeySecret
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "description": description},
	})
}

func copyNotes(n gateway.Notes) gateway.Notes {
	out := make(gateway.Notes, len(n))
	for k, v := range n {
		out[k] = v
	}
	return out
}
