package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Note keys written at order creation. They are the trusted record of who
// ordered what and are read back during confirmation.
const (
	NoteUserID     = "userId"
	NoteUserEmail  = "userEmail"
	NoteEventNames = "eventNames"
)

// MaxReceiptLength is the gateway's limit on the receipt field.
const MaxReceiptLength = 40

// Order statuses reported by the gateway.
const (
	OrderStatusCreated   = "created"
	OrderStatusAttempted = "attempted"
	OrderStatusPaid      = "paid"
)

// Notes is the free-form key/value map attached to orders and payments.
// The gateway encodes an empty map as [] so decoding accepts both shapes.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		*n = Notes{}
		return nil
	}
	raw := map[string]any{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("decode notes: %w", err)
	}
	out := make(Notes, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		case nil:
		default:
			out[k] = fmt.Sprint(tv)
		}
	}
	*n = out
	return nil
}

func (n Notes) UserID() string {
	return strings.TrimSpace(n[NoteUserID])
}

func (n Notes) UserEmail() string {
	return strings.TrimSpace(n[NoteUserEmail])
}

// EventNames splits the comma-joined event list, dropping blanks.
func (n Notes) EventNames() []string {
	return SplitEventNames(n[NoteEventNames])
}

// JoinEventNames is the inverse of SplitEventNames.
// EventNameSeparator joins event names in the eventNames note.
const EventNameSeparator = ','

func JoinEventNames(names []string) string {
	return strings.Join(names, string(EventNameSeparator))
}

func SplitEventNames(joined string) []string {
	var out []string
	for _, part := range strings.Split(joined, string(EventNameSeparator)) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Order is the gateway's order entity.
type Order struct {
	ID         string `json:"id"`
	Entity     string `json:"entity,omitempty"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	Notes      Notes  `json:"notes"`
	CreatedAt  int64  `json:"created_at"`
}

// CreatedTime converts the unix-seconds creation stamp.
func (o *Order) CreatedTime() time.Time {
	return time.Unix(o.CreatedAt, 0).UTC()
}

// CreateOrderRequest is the body of POST /v1/orders. Amount is in minor units.
type CreateOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Notes    Notes  `json:"notes,omitempty"`
}

// Payment is the payment entity carried in webhook payloads.
type Payment struct {
	ID        string `json:"id"`
	Entity    string `json:"entity,omitempty"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	OrderID   string `json:"order_id"`
	Method    string `json:"method,omitempty"`
	Email     string `json:"email,omitempty"`
	Captured  bool   `json:"captured"`
	Notes     Notes  `json:"notes"`
	CreatedAt int64  `json:"created_at"`
}

// WebhookEvent is the envelope of a webhook delivery.
type WebhookEvent struct {
	Entity    string         `json:"entity"`
	AccountID string         `json:"account_id"`
	Event     string         `json:"event"`
	Contains  []string       `json:"contains"`
	Payload   WebhookPayload `json:"payload"`
	CreatedAt int64          `json:"created_at"`
}

type WebhookPayload struct {
	Payment *struct {
		Entity Payment `json:"entity"`
	} `json:"payment,omitempty"`
	Order *struct {
		Entity Order `json:"entity"`
	} `json:"order,omitempty"`
}

// EventPaymentCaptured is the only webhook event that registers attendees.
const EventPaymentCaptured = "payment.captured"

// PaymentEntity returns the payment carried by the event, if any.
func (e *WebhookEvent) PaymentEntity() (*Payment, bool) {
	if e.Payload.Payment == nil {
		return nil, false
	}
	return &e.Payload.Payment.Entity, true
}

// ParseWebhookEvent decodes a webhook body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	if evt.Event == "" {
		return nil, fmt.Errorf("decode webhook event: missing event type")
	}
	return &evt, nil
}
