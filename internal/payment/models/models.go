package models

import (
	"fmt"
	"time"

	registration "eventpay/internal/registration/models"
)

// CreateOrderInput is a request to open a payment for some events.
type CreateOrderInput struct {
	UserID     string
	UserEmail  string
	EventNames []string
}

// OrderResult is what the client needs to open the checkout widget.
type OrderResult struct {
	OrderID     string
	Amount      int64 // minor units
	Currency    string
	Receipt     string
	EventNames  []string
	TotalAmount int64 // major units
}

// DirectConfirmation is the checkout callback relayed by the client.
// EventNames is only used when the order cannot be read back.
type DirectConfirmation struct {
	OrderID    string
	PaymentID  string
	Signature  string
	UserID     string
	UserEmail  string
	EventNames []string
}

// TrustedEvents is the event list a confirmation will register, tagged with
// where it came from.
type TrustedEvents struct {
	Names     []string
	Trust     registration.Trust
	UserID    string
	UserEmail string
	Amount    int64
}

// ConfirmResult reports a direct confirmation.
type ConfirmResult struct {
	PaymentID        string
	OrderID          string
	RegisteredEvents []string
	AlreadyProcessed bool
	Trust            registration.Trust
}

// WebhookOutcome classifies a webhook delivery. Every outcome is acknowledged
// with 200; only transient failures, returned as errors, ask for redelivery.
type WebhookOutcome string

const (
	WebhookProcessed WebhookOutcome = "processed"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookRejected  WebhookOutcome = "rejected"
)

// PaymentStatus is the read-through view of a gateway order.
type PaymentStatus struct {
	OrderID   string
	Status    string
	Amount    int64
	Currency  string
	CreatedAt time.Time
}

// PartialFailureError means the payment was verified but could not be
// recorded. The caller must keep PaymentID and OrderID for support.
type PartialFailureError struct {
	PaymentID string
	OrderID   string
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("payment %s for order %s verified but not recorded: %v", e.PaymentID, e.OrderID, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}
