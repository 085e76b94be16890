package handler

import (
	"time"

	"eventpay/internal/payment/models"
	registration "eventpay/internal/registration/models"
)

type CreateOrderResponse struct {
	ID          string   `json:"id"`
	Amount      int64    `json:"amount"`
	Currency    string   `json:"currency"`
	Receipt     string   `json:"receipt"`
	EventNames  []string `json:"eventNames"`
	TotalAmount int64    `json:"totalAmount"`
}

type VerifyPaymentResponse struct {
	Success          bool     `json:"success"`
	PaymentID        string   `json:"paymentId"`
	OrderID          string   `json:"orderId"`
	RegisteredEvents []string `json:"registeredEvents"`
	AlreadyProcessed bool     `json:"alreadyProcessed"`
	Trust            string   `json:"trust"`
}

// PartialFailureResponse is returned when a verified payment could not be
// recorded. The ids let support finish the registration by hand.
type PartialFailureResponse struct {
	Success          bool   `json:"success"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	PaymentID        string `json:"paymentId"`
	OrderID          string `json:"orderId"`
	Support          string `json:"support"`
}

type WebhookResponse struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
}

type PaymentStatusResponse struct {
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"createdAt"`
}

type PaymentResponse struct {
	PaymentID  string    `json:"paymentId"`
	OrderID    string    `json:"orderId"`
	EventNames []string  `json:"eventNames"`
	Amount     int64     `json:"amount"`
	Source     string    `json:"source"`
	Trust      string    `json:"trust"`
	Verified   bool      `json:"verified"`
	Timestamp  time.Time `json:"timestamp"`
}

type RegistrationResponse struct {
	UserID    string            `json:"userId"`
	UserEmail string            `json:"userEmail,omitempty"`
	Events    []string          `json:"events"`
	Payments  []PaymentResponse `json:"payments"`
	Version   int64             `json:"version"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

const supportMessage = "Your payment was received but your registration could not be saved. " +
	"Please contact support with the payment id and order id shown here; do not pay again."

func toCreateOrderResponse(o *models.OrderResult) *CreateOrderResponse {
	return &CreateOrderResponse{
		ID:          o.OrderID,
		Amount:      o.Amount,
		Currency:    o.Currency,
		Receipt:     o.Receipt,
		EventNames:  o.EventNames,
		TotalAmount: o.TotalAmount,
	}
}

func toVerifyPaymentResponse(res *models.ConfirmResult) *VerifyPaymentResponse {
	events := res.RegisteredEvents
	if events == nil {
		events = []string{}
	}
	return &VerifyPaymentResponse{
		Success:          true,
		PaymentID:        res.PaymentID,
		OrderID:          res.OrderID,
		RegisteredEvents: events,
		AlreadyProcessed: res.AlreadyProcessed,
		Trust:            string(res.Trust),
	}
}

func toPaymentStatusResponse(s *models.PaymentStatus) *PaymentStatusResponse {
	return &PaymentStatusResponse{
		OrderID:   s.OrderID,
		Status:    s.Status,
		Amount:    s.Amount,
		Currency:  s.Currency,
		CreatedAt: s.CreatedAt,
	}
}

func toRegistrationResponse(agg *registration.Aggregate) *RegistrationResponse {
	payments := make([]PaymentResponse, 0, len(agg.Payments))
	for _, p := range agg.Payments {
		payments = append(payments, PaymentResponse{
			PaymentID:  p.PaymentID,
			OrderID:    p.OrderID,
			EventNames: p.EventNames,
			Amount:     p.Amount,
			Source:     string(p.Source),
			Trust:      string(p.Trust),
			Verified:   p.Verified,
			Timestamp:  p.Timestamp,
		})
	}
	events := agg.Events
	if events == nil {
		events = []string{}
	}
	return &RegistrationResponse{
		UserID:    agg.UserID,
		UserEmail: agg.UserEmail,
		Events:    events,
		Payments:  payments,
		Version:   agg.Version,
		CreatedAt: agg.CreatedAt,
		UpdatedAt: agg.UpdatedAt,
	}
}
