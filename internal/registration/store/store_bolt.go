package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"eventpay/internal/registration/models"
	"eventpay/pkg/platform/outbox"
	"eventpay/pkg/platform/sentinel"
)

var (
	bucketRegistrations = []byte("registrations")
	bucketPaymentIndex  = []byte("payment_index")
	bucketOutbox        = []byte("outbox")
	bucketOutboxIDs     = []byte("outbox_ids")
)

// BoltStore keeps registrations in a single BoltDB file. Bolt serializes
// read-write transactions, so each Save observes the latest version.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database file and its buckets.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRegistrations, bucketPaymentIndex, bucketOutbox, bucketOutboxIDs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bolt buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) FindByUser(_ context.Context, userID string) (*models.Aggregate, error) {
	var agg models.Aggregate
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRegistrations).Get([]byte(userID))
		if v == nil {
			return sentinel.ErrNotFound
		}
		return json.Unmarshal(v, &agg)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &agg, nil
}

func (s *BoltStore) Save(_ context.Context, change *models.Change) error {
	if change == nil || change.Aggregate == nil {
		return fmt.Errorf("registration change is required")
	}
	if err := change.Aggregate.CheckInvariants(); err != nil {
		return err
	}

	userID := []byte(change.Aggregate.UserID)
	paymentID := []byte(change.Payment.PaymentID)
	next := change.ExpectedVersion + 1

	err := s.db.Update(func(tx *bolt.Tx) error {
		regs := tx.Bucket(bucketRegistrations)
		var current int64
		if v := regs.Get(userID); v != nil {
			var stored models.Aggregate
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("decode registration: %w", err)
			}
			current = stored.Version
		}
		if current != change.ExpectedVersion {
			return sentinel.ErrConflict
		}

		index := tx.Bucket(bucketPaymentIndex)
		if index.Get(paymentID) != nil {
			return sentinel.ErrPaymentRecorded
		}

		agg := change.Aggregate.Clone()
		agg.Version = next
		data, err := json.Marshal(agg)
		if err != nil {
			return fmt.Errorf("encode registration: %w", err)
		}
		if err := regs.Put(userID, data); err != nil {
			return err
		}
		if err := index.Put(paymentID, userID); err != nil {
			return err
		}
		for _, entry := range change.Outbox {
			if err := putOutbox(tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	change.Aggregate.Version = next
	return nil
}

// Outbox returns the outbox.Store view over the same file.
func (s *BoltStore) Outbox() outbox.Store {
	return &boltOutbox{db: s.db}
}

type boltEntry struct {
	ID            uuid.UUID  `json:"id"`
	AggregateType string     `json:"aggregateType"`
	AggregateID   string     `json:"aggregateId"`
	EventType     string     `json:"eventType"`
	Payload       []byte     `json:"payload"`
	CreatedAt     time.Time  `json:"createdAt"`
	ProcessedAt   *time.Time `json:"processedAt,omitempty"`
}

func (b *boltEntry) toEntry() *outbox.Entry {
	return &outbox.Entry{
		ID:            b.ID,
		AggregateType: b.AggregateType,
		AggregateID:   b.AggregateID,
		EventType:     b.EventType,
		Payload:       b.Payload,
		CreatedAt:     b.CreatedAt,
		ProcessedAt:   b.ProcessedAt,
	}
}

// outboxKey orders entries by creation time, then id.
func outboxKey(entry *outbox.Entry) []byte {
	key := make([]byte, 8, 8+16)
	binary.BigEndian.PutUint64(key, uint64(entry.CreatedAt.UnixNano()))
	return append(key, entry.ID[:]...)
}

func putOutbox(tx *bolt.Tx, entry *outbox.Entry) error {
	ids := tx.Bucket(bucketOutboxIDs)
	if ids.Get(entry.ID[:]) != nil {
		return fmt.Errorf("outbox entry %s already exists", entry.ID)
	}
	data, err := json.Marshal(boltEntry{
		ID:            entry.ID,
		AggregateType: entry.AggregateType,
		AggregateID:   entry.AggregateID,
		EventType:     entry.EventType,
		Payload:       entry.Payload,
		CreatedAt:     entry.CreatedAt,
		ProcessedAt:   entry.ProcessedAt,
	})
	if err != nil {
		return fmt.Errorf("encode outbox entry: %w", err)
	}
	key := outboxKey(entry)
	if err := tx.Bucket(bucketOutbox).Put(key, data); err != nil {
		return err
	}
	return ids.Put(entry.ID[:], key)
}

type boltOutbox struct {
	db *bolt.DB
}

func (o *boltOutbox) Append(_ context.Context, entry *outbox.Entry) error {
	return o.db.Update(func(tx *bolt.Tx) error {
		return putOutbox(tx, entry)
	})
}

func (o *boltOutbox) FetchUnprocessed(_ context.Context, limit int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []*outbox.Entry
	err := o.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOutbox).Cursor()
		for k, v := c.First(); k != nil && len(out) < limit; k, v = c.Next() {
			var e boltEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode outbox entry: %w", err)
			}
			if e.ProcessedAt == nil {
				out = append(out, e.toEntry())
			}
		}
		return nil
	})
	return out, err
}

func (o *boltOutbox) MarkProcessed(_ context.Context, id uuid.UUID, processedAt time.Time) error {
	return o.db.Update(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketOutboxIDs).Get(id[:])
		if key == nil {
			return fmt.Errorf("%w: %s", outbox.ErrNotPending, id)
		}
		bucket := tx.Bucket(bucketOutbox)
		var e boltEntry
		if err := json.Unmarshal(bucket.Get(key), &e); err != nil {
			return fmt.Errorf("decode outbox entry: %w", err)
		}
		if e.ProcessedAt != nil {
			return fmt.Errorf("%w: %s", outbox.ErrNotPending, id)
		}
		e.ProcessedAt = &processedAt
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return bucket.Put(bytes.Clone(key), data)
	})
}

func (o *boltOutbox) CountPending(_ context.Context) (int64, error) {
	var n int64
	err := o.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOutbox).ForEach(func(_, v []byte) error {
			var e boltEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if e.ProcessedAt == nil {
				n++
			}
			return nil
		})
	})
	return n, err
}

func (o *boltOutbox) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	var n int64
	err := o.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketOutbox)
		ids := tx.Bucket(bucketOutboxIDs)
		var stale [][]byte
		var staleIDs []uuid.UUID
		err := bucket.ForEach(func(k, v []byte) error {
			var e boltEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
				stale = append(stale, bytes.Clone(k))
				staleIDs = append(staleIDs, e.ID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			if err := ids.Delete(staleIDs[i][:]); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}
