package models

import (
	"slices"
	"strings"
	"time"

	dErrors "eventpay/pkg/domain-errors"
)

// PaymentRecord is an append-only entry for one successful payment.
// PaymentID is the idempotency key.
type PaymentRecord struct {
	OrderID    string    `json:"orderId"`
	PaymentID  string    `json:"paymentId"`
	EventNames []string  `json:"eventNames"`
	Amount     int64     `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
	Source     Source    `json:"source"`
	Verified   bool      `json:"verified"`
	Trust      Trust     `json:"trust"`
}

// Aggregate is the per-user registration record.
//
// Invariants maintained by Apply:
//   - every event of every payment is present in Events
//   - no two payments share a PaymentID
//
// Version is the optimistic concurrency token; stores bump it by one per write.
type Aggregate struct {
	UserID    string          `json:"userId"`
	UserEmail string          `json:"userEmail"`
	Events    []string        `json:"events"`
	Payments  []PaymentRecord `json:"payments"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewAggregate returns an empty, unsaved aggregate (version 0).
func NewAggregate(userID, userEmail string, now time.Time) *Aggregate {
	return &Aggregate{
		UserID:    userID,
		UserEmail: userEmail,
		Events:    []string{},
		Payments:  []PaymentRecord{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasPayment reports whether paymentID was already applied.
func (a *Aggregate) HasPayment(paymentID string) bool {
	return a.FindPayment(paymentID) != nil
}

func (a *Aggregate) FindPayment(paymentID string) *PaymentRecord {
	for i := range a.Payments {
		if a.Payments[i].PaymentID == paymentID {
			return &a.Payments[i]
		}
	}
	return nil
}

// HasEvent compares case-insensitively.
func (a *Aggregate) HasEvent(name string) bool {
	return slices.ContainsFunc(a.Events, func(e string) bool { return strings.EqualFold(e, name) })
}

// Apply merges record into the aggregate: the union of its events and the
// payment appended. The caller must check HasPayment first.
func (a *Aggregate) Apply(record PaymentRecord, userEmail string, now time.Time) {
	for _, name := range record.EventNames {
		if !a.HasEvent(name) {
			a.Events = append(a.Events, name)
		}
	}
	record.EventNames = slices.Clone(record.EventNames)
	a.Payments = append(a.Payments, record)
	if a.UserEmail == "" && userEmail != "" {
		a.UserEmail = userEmail
	}
	a.UpdatedAt = now
}

// Clone returns a deep copy.
func (a *Aggregate) Clone() *Aggregate {
	c := *a
	c.Events = slices.Clone(a.Events)
	c.Payments = make([]PaymentRecord, len(a.Payments))
	for i, p := range a.Payments {
		p.EventNames = slices.Clone(p.EventNames)
		c.Payments[i] = p
	}
	return &c
}

// CheckInvariants verifies the aggregate's structural rules. Stores call it
// before persisting.
func (a *Aggregate) CheckInvariants() error {
	seen := make(map[string]struct{}, len(a.Payments))
	for _, p := range a.Payments {
		if _, dup := seen[p.PaymentID]; dup {
			return dErrors.New(dErrors.CodeInvariantViolation, "payment "+p.PaymentID+" recorded twice")
		}
		seen[p.PaymentID] = struct{}{}
		for _, name := range p.EventNames {
			if !a.HasEvent(name) {
				return dErrors.New(dErrors.CodeInvariantViolation, "event "+name+" of payment "+p.PaymentID+" missing from registration")
			}
		}
	}
	return nil
}

// Input is one confirmed payment to reconcile into a user's registration.
type Input struct {
	UserID     string
	UserEmail  string
	OrderID    string
	PaymentID  string
	EventNames []string
	Amount     int64
	Source     Source
	Trust      Trust
}

func (in *Input) Normalize() {
	in.UserID = strings.TrimSpace(in.UserID)
	in.UserEmail = strings.TrimSpace(in.UserEmail)
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.PaymentID = strings.TrimSpace(in.PaymentID)
	names := make([]string, 0, len(in.EventNames))
	for _, n := range in.EventNames {
		n = strings.TrimSpace(n)
		if n != "" && !slices.ContainsFunc(names, func(e string) bool { return strings.EqualFold(e, n) }) {
			names = append(names, n)
		}
	}
	in.EventNames = names
}

func (in *Input) Validate() error {
	switch {
	case in.UserID == "":
		return dErrors.New(dErrors.CodeValidation, "user id is required")
	case in.PaymentID == "":
		return dErrors.New(dErrors.CodeValidation, "payment id is required")
	case in.OrderID == "":
		return dErrors.New(dErrors.CodeValidation, "order id is required")
	case len(in.EventNames) == 0:
		return dErrors.New(dErrors.CodeValidation, "no events to register")
	case !in.Source.IsValid():
		return dErrors.New(dErrors.CodeValidation, "invalid source")
	case !in.Trust.IsValid():
		return dErrors.New(dErrors.CodeValidation, "invalid trust")
	}
	return nil
}

// Record builds the payment record for this input.
func (in *Input) Record(now time.Time) PaymentRecord {
	return PaymentRecord{
		OrderID:    in.OrderID,
		PaymentID:  in.PaymentID,
		EventNames: slices.Clone(in.EventNames),
		Amount:     in.Amount,
		Timestamp:  now,
		Source:     in.Source,
		Verified:   true,
		Trust:      in.Trust,
	}
}

// Result reports the outcome of a reconciliation.
type Result struct {
	Registration     *Aggregate
	AlreadyProcessed bool
	Attempts         int
}
