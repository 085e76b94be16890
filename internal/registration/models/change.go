package models

import (
	"encoding/json"
	"fmt"
	"time"

	"eventpay/pkg/platform/outbox"
)

const (
	AggregateTypeRegistration = "registration"
	EventTypeConfirmed        = "registration.confirmed"
)

// Change is a single versioned write: the new aggregate state, the payment
// that produced it and the events to publish. Stores commit all three or none.
type Change struct {
	Aggregate       *Aggregate
	Payment         PaymentRecord
	ExpectedVersion int64
	Outbox          []*outbox.Entry
}

// ConfirmedEvent is the payload of a registration.confirmed outbox entry.
// Downstream mailers and ticket generators consume it.
type ConfirmedEvent struct {
	UserID      string    `json:"userId"`
	UserEmail   string    `json:"userEmail"`
	OrderID     string    `json:"orderId"`
	PaymentID   string    `json:"paymentId"`
	EventNames  []string  `json:"eventNames"`
	AllEvents   []string  `json:"allEvents"`
	Amount      int64     `json:"amount"`
	Source      Source    `json:"source"`
	Trust       Trust     `json:"trust"`
	Version     int64     `json:"version"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// NewChange prepares the write for applying record to agg, whose stored version
// is expectedVersion. agg must already have record applied.
func NewChange(agg *Aggregate, record PaymentRecord, expectedVersion int64, now time.Time) (*Change, error) {
	payload, err := json.Marshal(ConfirmedEvent{
		UserID:      agg.UserID,
		UserEmail:   agg.UserEmail,
		OrderID:     record.OrderID,
		PaymentID:   record.PaymentID,
		EventNames:  record.EventNames,
		AllEvents:   agg.Events,
		Amount:      record.Amount,
		Source:      record.Source,
		Trust:       record.Trust,
		Version:     expectedVersion + 1,
		ConfirmedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("encode confirmed event: %w", err)
	}
	return &Change{
		Aggregate:       agg,
		Payment:         record,
		ExpectedVersion: expectedVersion,
		Outbox: []*outbox.Entry{
			outbox.NewEntry(AggregateTypeRegistration, agg.UserID, EventTypeConfirmed, payload, now),
		},
	}, nil
}
