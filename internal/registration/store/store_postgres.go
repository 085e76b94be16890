package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"eventpay/internal/registration/models"
	outboxpg "eventpay/pkg/platform/outbox/store/postgres"
	"eventpay/pkg/platform/sentinel"
)

const (
	pgUniqueViolation  = "23505"
	paymentsPrimaryKey = "registration_payments_pkey"
)

// PostgresStore persists registrations in PostgreSQL. Each Save runs in one
// transaction: a version-checked upsert of the registration row, an insert into
// registration_payments (payment_id is the primary key) and the outbox inserts.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed registration store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) FindByUser(ctx context.Context, userID string) (*models.Aggregate, error) {
	agg, err := findByUser(ctx, s.db, userID)
	if err != nil {
		return nil, classify(err)
	}
	return agg, nil
}

func findByUser(ctx context.Context, q queryer, userID string) (*models.Aggregate, error) {
	agg := &models.Aggregate{UserID: userID}
	var events []byte
	err := q.QueryRowContext(ctx, `
		SELECT user_email, events, version, created_at, updated_at
		FROM registrations
		WHERE user_id = $1
	`, userID).Scan(&agg.UserEmail, &events, &agg.Version, &agg.CreatedAt, &agg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	if err := json.Unmarshal(events, &agg.Events); err != nil {
		return nil, fmt.Errorf("decode registration events: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT payment_id, order_id, event_names, amount, source, trust, verified, recorded_at
		FROM registration_payments
		WHERE user_id = $1
		ORDER BY position
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list registration payments: %w", err)
	}
	defer rows.Close()

	agg.Payments = []models.PaymentRecord{}
	for rows.Next() {
		var (
			p     models.PaymentRecord
			names []byte
		)
		if err := rows.Scan(&p.PaymentID, &p.OrderID, &names, &p.Amount, &p.Source, &p.Trust, &p.Verified, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan registration payment: %w", err)
		}
		if err := json.Unmarshal(names, &p.EventNames); err != nil {
			return nil, fmt.Errorf("decode payment events: %w", err)
		}
		agg.Payments = append(agg.Payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registration payments: %w", err)
	}
	if agg.Events == nil {
		agg.Events = []string{}
	}
	return agg, nil
}

func (s *PostgresStore) Save(ctx context.Context, change *models.Change) error {
	if change == nil || change.Aggregate == nil {
		return fmt.Errorf("registration change is required")
	}
	if err := change.Aggregate.CheckInvariants(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin registration tx: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := saveInTx(ctx, tx, change); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit registration tx: %w", err))
	}
	change.Aggregate.Version = change.ExpectedVersion + 1
	return nil
}

func saveInTx(ctx context.Context, tx *sql.Tx, change *models.Change) error {
	agg := change.Aggregate
	events, err := json.Marshal(agg.Events)
	if err != nil {
		return fmt.Errorf("encode registration events: %w", err)
	}

	var res sql.Result
	if change.ExpectedVersion == 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO registrations (user_id, user_email, events, version, created_at, updated_at)
			VALUES ($1, $2, $3, 1, $4, $5)
			ON CONFLICT (user_id) DO NOTHING
		`, agg.UserID, agg.UserEmail, events, agg.CreatedAt, agg.UpdatedAt)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE registrations
			SET user_email = $2, events = $3, version = version + 1, updated_at = $4
			WHERE user_id = $1 AND version = $5
		`, agg.UserID, agg.UserEmail, events, agg.UpdatedAt, change.ExpectedVersion)
	}
	if err != nil {
		return fmt.Errorf("write registration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write registration: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}

	p := change.Payment
	names, err := json.Marshal(p.EventNames)
	if err != nil {
		return fmt.Errorf("encode payment events: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO registration_payments
			(payment_id, user_id, position, order_id, event_names, amount, source, trust, verified, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.PaymentID, agg.UserID, len(agg.Payments)-1, p.OrderID, names, p.Amount, string(p.Source), string(p.Trust), p.Verified, p.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if pgErr.ConstraintName == paymentsPrimaryKey {
				return sentinel.ErrPaymentRecorded
			}
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert registration payment: %w", err)
	}

	for _, entry := range change.Outbox {
		if err := outboxpg.Insert(ctx, tx, entry); err != nil {
			return err
		}
	}
	return nil
}

// classify maps driver failures onto the store's sentinels. A rolled-back
// serialization or deadlock victim is a conflict and is retried from a fresh
// read; connection loss, resource exhaustion and operator intervention make
// the store unavailable.
func classify(err error) error {
	if err == nil || errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrConflict) ||
		errors.Is(err, sentinel.ErrPaymentRecorded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 {
		switch pgErr.Code[:2] {
		case "40":
			return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
		case "08", "53", "57":
			return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
		}
	}
	var (
		connErr *pgconn.ConnectError
		netErr  net.Error
	)
	if errors.As(err, &connErr) || errors.As(err, &netErr) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}
