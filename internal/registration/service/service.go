// Package service merges confirmed payments into registrations.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"eventpay/internal/platform/privacy"
	"eventpay/internal/registration/metrics"
	"eventpay/internal/registration/models"
	dErrors "eventpay/pkg/domain-errors"
	"eventpay/pkg/platform/sentinel"
	"eventpay/pkg/platform/tracer"
	"eventpay/pkg/requestcontext"
)

// Store is the persistence contract the reconciler needs. See the store
// package for the error contract.
type Store interface {
	FindByUser(ctx context.Context, userID string) (*models.Aggregate, error)
	Save(ctx context.Context, change *models.Change) error
}

const (
	defaultMaxAttempts = 5
	defaultBaseBackoff = 10 * time.Millisecond
	maxBackoff         = 250 * time.Millisecond
)

// Reconciler applies payments to registrations with optimistic concurrency.
// It holds no locks: per-user atomicity comes from the store's versioned Save.
type Reconciler struct {
	store       Store
	metrics     *metrics.Metrics
	tracer      tracer.Tracer
	logger      *slog.Logger
	maxAttempts int
	baseBackoff time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*Reconciler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(r *Reconciler) {
		if t != nil {
			r.tracer = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxAttempts bounds the read-modify-write loop. Default is 5.
func WithMaxAttempts(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between conflicting attempts. Zero disables waiting.
func WithBackoff(d time.Duration) Option {
	return func(r *Reconciler) {
		if d >= 0 {
			r.baseBackoff = d
		}
	}
}

func New(store Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:       store,
		tracer:      tracer.NewNoop(),
		logger:      slog.New(slog.DiscardHandler),
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile applies in to the user's registration exactly once per payment id.
//
// The loop reads the aggregate, returns early when the payment is already
// present, merges the events, appends the payment and saves against the read
// version. A version conflict restarts the loop; after maxAttempts the call
// fails with CodeConflict, which callers treat as retryable.
func (r *Reconciler) Reconcile(ctx context.Context, in models.Input) (result *models.Result, err error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, tracer.SpanReconcile,
		tracer.String(tracer.AttrOrderID, in.OrderID),
		tracer.String(tracer.AttrPaymentID, in.PaymentID),
		tracer.String(tracer.AttrSource, string(in.Source)),
		tracer.String(tracer.AttrTrust, string(in.Trust)),
	)
	defer func() { span.End(err) }()

	start := time.Now()
	defer func() {
		r.metrics.ObserveLatency(time.Since(start).Seconds())
	}()

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		span.SetAttributes(tracer.Int(tracer.AttrAttempt, attempt))

		agg, err := r.load(ctx, in)
		if err != nil {
			return nil, err
		}
		if agg.HasPayment(in.PaymentID) {
			return r.duplicate(ctx, span, in, agg, attempt), nil
		}

		now := requestcontext.Now(ctx)
		expected := agg.Version
		record := in.Record(now)
		agg.Apply(record, in.UserEmail, now)

		change, err := models.NewChange(agg, record, expected, now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to prepare registration change")
		}

		err = r.store.Save(ctx, change)
		switch {
		case err == nil:
			r.metrics.IncReconciled(string(in.Source), string(in.Trust))
			r.metrics.ObserveAttempts(attempt)
			r.logger.InfoContext(ctx, "payment reconciled",
				"user_id", in.UserID,
				"user_email", privacy.MaskEmail(in.UserEmail),
				"order_id", in.OrderID,
				"payment_id", in.PaymentID,
				"source", in.Source,
				"trust", in.Trust,
				"events", record.EventNames,
				"version", change.Aggregate.Version,
				"attempt", attempt,
			)
			return &models.Result{Registration: change.Aggregate, Attempts: attempt}, nil

		case errors.Is(err, sentinel.ErrPaymentRecorded):
			current, findErr := r.store.FindByUser(ctx, in.UserID)
			if findErr != nil {
				current = nil
			}
			return r.duplicate(ctx, span, in, current, attempt), nil

		case errors.Is(err, sentinel.ErrConflict):
			r.metrics.IncConflict()
			span.AddEvent(tracer.EventConflict, tracer.Int(tracer.AttrAttempt, attempt))
			r.logger.DebugContext(ctx, "registration version conflict",
				"user_id", in.UserID,
				"payment_id", in.PaymentID,
				"expected_version", expected,
				"attempt", attempt,
			)
			if attempt < r.maxAttempts {
				if err := r.sleep(ctx, r.backoff(attempt)); err != nil {
					return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "reconciliation aborted")
				}
			}

		default:
			return nil, translateStoreError(err)
		}
	}

	r.metrics.IncExhausted()
	r.metrics.ObserveAttempts(r.maxAttempts)
	r.logger.WarnContext(ctx, "reconciliation conflict retries exhausted",
		"user_id", in.UserID,
		"order_id", in.OrderID,
		"payment_id", in.PaymentID,
		"attempts", r.maxAttempts,
	)
	return nil, dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "reconciliation conflict: retries exhausted")
}

// Registration returns the stored registration for userID.
func (r *Reconciler) Registration(ctx context.Context, userID string) (*models.Aggregate, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	agg, err := r.store.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return nil, translateStoreError(err)
	}
	return agg, nil
}

func (r *Reconciler) load(ctx context.Context, in models.Input) (*models.Aggregate, error) {
	agg, err := r.store.FindByUser(ctx, in.UserID)
	if err == nil {
		return agg, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.NewAggregate(in.UserID, in.UserEmail, requestcontext.Now(ctx)), nil
	}
	return nil, translateStoreError(err)
}

func (r *Reconciler) duplicate(ctx context.Context, span tracer.Span, in models.Input, agg *models.Aggregate, attempt int) *models.Result {
	r.metrics.IncDuplicate(string(in.Source))
	r.metrics.ObserveAttempts(attempt)
	span.SetAttributes(tracer.Bool(tracer.AttrDuplicate, true))
	r.logger.InfoContext(ctx, "payment already reconciled",
		"user_id", in.UserID,
		"order_id", in.OrderID,
		"payment_id", in.PaymentID,
		"source", in.Source,
	)
	return &models.Result{Registration: agg, AlreadyProcessed: true, Attempts: attempt}
}

// backoff is full jitter over an exponentially growing cap.
func (r *Reconciler) backoff(attempt int) time.Duration {
	if r.baseBackoff <= 0 {
		return 0
	}
	ceiling := r.baseBackoff << (attempt - 1)
	if ceiling > maxBackoff || ceiling <= 0 {
		ceiling = maxBackoff
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}

func translateStoreError(err error) error {
	if _, coded := dErrors.CodeOf(err); coded {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "registration store unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "registration store call aborted")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "registration store failure")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
