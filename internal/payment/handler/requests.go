package handler

import (
	"strings"

	"eventpay/internal/payment/models"
	"eventpay/pkg/validation"
)

type CreateOrderRequest struct {
	UserID     string   `json:"userId" validate:"required,max=128"`
	UserEmail  string   `json:"userEmail" validate:"omitempty,email,max=254"`
	EventNames []string `json:"eventNames" validate:"required,min=1,max=50,dive,notblank,max=128"`
}

func (r *CreateOrderRequest) Normalize() {
	if r == nil {
		return
	}
	r.UserID = strings.TrimSpace(r.UserID)
	r.UserEmail = strings.TrimSpace(r.UserEmail)
	r.EventNames = trimAll(r.EventNames)
}

func (r *CreateOrderRequest) Validate() error {
	return validation.Validate(r)
}

func (r *CreateOrderRequest) toInput() models.CreateOrderInput {
	return models.CreateOrderInput{
		UserID:     r.UserID,
		UserEmail:  r.UserEmail,
		EventNames: r.EventNames,
	}
}

// VerifyPaymentRequest is the checkout callback relayed by the browser.
// EventNames is optional and only consulted when the order cannot be read.
type VerifyPaymentRequest struct {
	OrderID    string   `json:"orderId" validate:"required,max=128,gatewayid"`
	PaymentID  string   `json:"paymentId" validate:"required,max=128,gatewayid"`
	Signature  string   `json:"signature" validate:"required,max=256"`
	UserID     string   `json:"userId" validate:"required,max=128"`
	UserEmail  string   `json:"userEmail" validate:"omitempty,email,max=254"`
	EventNames []string `json:"eventNames" validate:"max=50,dive,max=128"`
}

func (r *VerifyPaymentRequest) Normalize() {
	if r == nil {
		return
	}
	r.OrderID = strings.TrimSpace(r.OrderID)
	r.PaymentID = strings.TrimSpace(r.PaymentID)
	r.Signature = strings.ToLower(strings.TrimSpace(r.Signature))
	r.UserID = strings.TrimSpace(r.UserID)
	r.UserEmail = strings.TrimSpace(r.UserEmail)
	r.EventNames = trimAll(r.EventNames)
}

func (r *VerifyPaymentRequest) Validate() error {
	return validation.Validate(r)
}

func (r *VerifyPaymentRequest) toConfirmation() models.DirectConfirmation {
	return models.DirectConfirmation{
		OrderID:    r.OrderID,
		PaymentID:  r.PaymentID,
		Signature:  r.Signature,
		UserID:     r.UserID,
		UserEmail:  r.UserEmail,
		EventNames: r.EventNames,
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
