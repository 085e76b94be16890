package gatewaytest

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"eventpay/internal/gateway"
	"eventpay/internal/gateway/signature"
)

// Delivery is a signed webhook request body.
type Delivery struct {
	Body      []byte
	Signature string
	EventID   string
}

var deliverySeq atomic.Int64

// CapturedEvent builds a payment.captured event for an existing order. The
// payment entity carries the order's notes, as the gateway copies them.
func (s *Server) CapturedEvent(orderID, paymentID string) (*gateway.WebhookEvent, error) {
	order, ok := s.Order(orderID)
	if !ok {
		return nil, fmt.Errorf("gatewaytest: unknown order %q", orderID)
	}
	return CapturedEvent(order, paymentID), nil
}

// CapturedEvent builds a payment.captured event from an order value.
func CapturedEvent(order *gateway.Order, paymentID string) *gateway.WebhookEvent {
	now := time.Now().Unix()
	evt := &gateway.WebhookEvent{
		Entity:    "event",
		AccountID: "acc_test",
		Event:     gateway.EventPaymentCaptured,
		Contains:  []string{"payment"},
		CreatedAt: now,
	}
	evt.Payload.Payment = &struct {
		Entity gateway.Payment `json:"entity"`
	}{Entity: gateway.Payment{
		ID:        paymentID,
		Entity:    "payment",
		Amount:    order.Amount,
		Currency:  order.Currency,
		Status:    "captured",
		OrderID:   order.ID,
		Method:    "upi",
		Email:     order.Notes.UserEmail(),
		Captured:  true,
		Notes:     copyNotes(order.Notes),
		CreatedAt: now,
	}}
	return evt
}

// Sign encodes evt and signs it with the webhook secret.
func (s *Server) Sign(evt *gateway.WebhookEvent) (Delivery, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return Delivery{}, err
	}
	return s.SignBody(body), nil
}

// SignBody signs a raw body with the webhook secret and assigns a fresh event id.
func (s *Server) SignBody(body []byte) Delivery {
	return Delivery{
		Body:      body,
		Signature: signature.Sign(body, s.WebhookSecret),
		EventID:   fmt.Sprintf("evt_test%06d", deliverySeq.Add(1)),
	}
}

// Captured is CapturedEvent followed by Sign.
func (s *Server) Captured(orderID, paymentID string) (Delivery, error) {
	evt, err := s.CapturedEvent(orderID, paymentID)
	if err != nil {
		return Delivery{}, err
	}
	return s.Sign(evt)
}
