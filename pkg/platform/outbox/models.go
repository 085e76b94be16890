// Package outbox records integration events next to the state change they
// describe and relays them to Kafka afterwards.
package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Entry is one event awaiting publication. AggregateID is the partition key,
// so events of one aggregate are published in CreatedAt order.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

func NewEntry(aggregateType, aggregateID, eventType string, payload []byte, createdAt time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     createdAt,
	}
}

func (e *Entry) IsPending() bool { return e.ProcessedAt == nil }

// Headers are the record headers consumers dedupe and route on.
func (e *Entry) Headers() map[string]string {
	return map[string]string{
		"outbox_id":      e.ID.String(),
		"aggregate_type": e.AggregateType,
		"aggregate_id":   e.AggregateID,
		"event_type":     e.EventType,
	}
}

// Clone copies the entry so a store never hands out its own memory.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	if e.ProcessedAt != nil {
		at := *e.ProcessedAt
		c.ProcessedAt = &at
	}
	return &c
}

// ErrNotPending is returned by MarkProcessed for an unknown or already
// published entry.
var ErrNotPending = errors.New("outbox entry not pending")
