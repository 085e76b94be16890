package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"eventpay/internal/catalog"
	"eventpay/internal/gateway"
	"eventpay/internal/gateway/signature"
	"eventpay/internal/payment/cache"
	"eventpay/internal/payment/metrics"
	"eventpay/internal/payment/models"
	"eventpay/internal/platform/privacy"
	registration "eventpay/internal/registration/models"
	dErrors "eventpay/pkg/domain-errors"
	"eventpay/pkg/platform/tracer"
	"eventpay/pkg/requestcontext"
)

// Reconciler merges a confirmed payment into the user's registration.
type Reconciler interface {
	Reconcile(ctx context.Context, in registration.Input) (*registration.Result, error)
}

const (
	channelDirect  = "direct"
	channelWebhook = "webhook"
)

// Secrets are the gateway credentials used to check signatures.
type Secrets struct {
	KeySecret     string
	WebhookSecret string
}

// Confirmer handles both confirmation channels. The direct path and the
// webhook path may run concurrently for the same payment in any order; both
// end in Reconcile, which applies the payment once.
type Confirmer struct {
	reconciler   Reconciler
	reader       OrderReader
	orders       cache.OrderCache
	deliveries   cache.DeliveryLog
	catalog      *catalog.Catalog
	secrets      Secrets
	fetchTimeout time.Duration
	metrics      *metrics.Metrics
	tracer       tracer.Tracer
	logger       *slog.Logger
}

type ConfirmOption func(*Confirmer)

func WithConfirmOrderCache(c cache.OrderCache) ConfirmOption {
	return func(s *Confirmer) {
		s.orders = c
	}
}

func WithDeliveryLog(l cache.DeliveryLog) ConfirmOption {
	return func(s *Confirmer) {
		s.deliveries = l
	}
}

// WithCatalog restricts client-supplied fallback event lists to catalog events.
func WithCatalog(c *catalog.Catalog) ConfirmOption {
	return func(s *Confirmer) {
		s.catalog = c
	}
}

// WithFetchTimeout bounds the order read-back. Default is 3s.
func WithFetchTimeout(d time.Duration) ConfirmOption {
	return func(s *Confirmer) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

func WithConfirmMetrics(m *metrics.Metrics) ConfirmOption {
	return func(s *Confirmer) {
		s.metrics = m
	}
}

func WithConfirmTracer(t tracer.Tracer) ConfirmOption {
	return func(s *Confirmer) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithConfirmLogger(logger *slog.Logger) ConfirmOption {
	return func(s *Confirmer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewConfirmer(reconciler Reconciler, reader OrderReader, secrets Secrets, opts ...ConfirmOption) *Confirmer {
	c := &Confirmer{
		reconciler:   reconciler,
		reader:       reader,
		secrets:      secrets,
		fetchTimeout: 3 * time.Second,
		tracer:       tracer.NewNoop(),
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConfirmDirect verifies a checkout callback and registers the paid events.
//
// The event list comes from the order's notes whenever the order can be read;
// the client's list is used only when the read fails, and the payment is then
// recorded with fallback trust. A verified payment that cannot be recorded is
// reported as *models.PartialFailureError, never swallowed.
func (c *Confirmer) ConfirmDirect(ctx context.Context, in models.DirectConfirmation) (result *models.ConfirmResult, err error) {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.PaymentID = strings.TrimSpace(in.PaymentID)
	in.Signature = strings.TrimSpace(in.Signature)
	in.UserID = strings.TrimSpace(in.UserID)
	if in.OrderID == "" || in.PaymentID == "" || in.Signature == "" || in.UserID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "orderId, paymentId, signature and userId are required")
	}

	ctx, span := c.tracer.Start(ctx, tracer.SpanConfirmDirect,
		tracer.String(tracer.AttrOrderID, in.OrderID),
		tracer.String(tracer.AttrPaymentID, in.PaymentID),
	)
	defer func() { span.End(err) }()
	start := time.Now()
	defer func() { c.metrics.ObserveConfirmLatency(channelDirect, time.Since(start).Seconds()) }()

	if !signature.VerifyPayment(in.OrderID, in.PaymentID, in.Signature, c.secrets.KeySecret) {
		c.metrics.IncSignatureFailure(channelDirect)
		c.logger.WarnContext(ctx, "payment signature rejected",
			"security_event", true,
			"request_id", requestcontext.RequestID(ctx),
			"client_ip", privacy.MaskIP(requestcontext.ClientIP(ctx)),
			"order_id", in.OrderID,
			"payment_id", in.PaymentID,
			"user_id", in.UserID,
		)
		return nil, dErrors.New(dErrors.CodeInvalidSignature, "invalid payment signature")
	}

	trusted, err := c.directEvents(ctx, span, in)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrTrust, string(trusted.Trust)))

	email := strings.TrimSpace(in.UserEmail)
	if email == "" {
		email = trusted.UserEmail
	}
	res, err := c.reconciler.Reconcile(ctx, registration.Input{
		UserID:     in.UserID,
		UserEmail:  email,
		OrderID:    in.OrderID,
		PaymentID:  in.PaymentID,
		EventNames: trusted.Names,
		Amount:     trusted.Amount,
		Source:     registration.SourceDirect,
		Trust:      trusted.Trust,
	})
	if err != nil {
		c.metrics.IncPartialFailure()
		c.logger.ErrorContext(ctx, "verified payment not recorded",
			"request_id", requestcontext.RequestID(ctx),
			"order_id", in.OrderID,
			"payment_id", in.PaymentID,
			"user_id", in.UserID,
			"events", trusted.Names,
			"error", err,
		)
		return nil, &models.PartialFailureError{PaymentID: in.PaymentID, OrderID: in.OrderID, Err: err}
	}

	registered := trusted.Names
	if res.Registration != nil {
		registered = res.Registration.Events
	}
	return &models.ConfirmResult{
		PaymentID:        in.PaymentID,
		OrderID:          in.OrderID,
		RegisteredEvents: registered,
		AlreadyProcessed: res.AlreadyProcessed,
		Trust:            trusted.Trust,
	}, nil
}

func (c *Confirmer) directEvents(ctx context.Context, span tracer.Span, in models.DirectConfirmation) (*models.TrustedEvents, error) {
	order, err := c.order(ctx, span, in.OrderID)
	if err == nil {
		return c.orderEvents(ctx, in, order)
	}

	names := c.fallbackNames(ctx, in.EventNames)
	span.AddEvent(tracer.EventFallbackUsed, tracer.Int("fallback.events", len(names)))
	c.logger.WarnContext(ctx, "order unreadable, using client event list",
		"request_id", requestcontext.RequestID(ctx),
		"order_id", in.OrderID,
		"payment_id", in.PaymentID,
		"events", names,
		"error", err,
	)
	if len(names) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "no events to register")
	}
	c.metrics.IncTrustedEvents(channelDirect, string(registration.TrustFallback))
	return &models.TrustedEvents{Names: names, Trust: registration.TrustFallback, Amount: c.listPrice(names)}, nil
}

// orderEvents takes the registration data from an order that was read back.
// Its notes are the only source considered; the client's list is never mixed in.
func (c *Confirmer) orderEvents(ctx context.Context, in models.DirectConfirmation, order *gateway.Order) (*models.TrustedEvents, error) {
	if owner := order.Notes.UserID(); owner != "" && owner != in.UserID {
		c.logger.WarnContext(ctx, "payment confirmed by a different user than the order owner",
			"security_event", true,
			"request_id", requestcontext.RequestID(ctx),
			"order_id", in.OrderID,
			"payment_id", in.PaymentID,
			"user_id", in.UserID,
		)
		return nil, dErrors.New(dErrors.CodeForbidden, "order belongs to another user")
	}
	names := order.Notes.EventNames()
	if len(names) == 0 {
		c.logger.WarnContext(ctx, "order carries no events",
			"request_id", requestcontext.RequestID(ctx),
			"order_id", in.OrderID,
			"payment_id", in.PaymentID,
		)
		return nil, dErrors.New(dErrors.CodeValidation, "no events to register")
	}
	c.metrics.IncTrustedEvents(channelDirect, string(registration.TrustAuthoritative))
	return &models.TrustedEvents{
		Names:     names,
		Trust:     registration.TrustAuthoritative,
		UserID:    order.Notes.UserID(),
		UserEmail: order.Notes.UserEmail(),
		Amount:    order.Amount,
	}, nil
}

// listPrice is the catalog price of fallback names in minor units, kept on the
// record for manual reconciliation. Zero without a catalog.
func (c *Confirmer) listPrice(names []string) int64 {
	if c.catalog == nil {
		return 0
	}
	total, err := c.catalog.TotalPrice(names)
	if err != nil {
		return 0
	}
	return total * catalog.MinorUnitsPerMajor
}

// fallbackNames keeps the client's names that resolve in the catalog, as
// display names. Without a catalog the list is used as given.
func (c *Confirmer) fallbackNames(ctx context.Context, names []string) []string {
	if c.catalog == nil {
		out := make([]string, 0, len(names))
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				out = append(out, n)
			}
		}
		return out
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		e, err := c.catalog.Lookup(n)
		if err != nil {
			c.logger.WarnContext(ctx, "dropping unknown event from client list", "event", n)
			continue
		}
		out = append(out, e.DisplayName)
	}
	return out
}

// order reads an order from the cache, then from the gateway with the fetch
// timeout. Gateway reads are cached on success.
func (c *Confirmer) order(ctx context.Context, span tracer.Span, orderID string) (*gateway.Order, error) {
	if c.orders != nil {
		order, err := c.orders.Get(ctx, orderID)
		switch {
		case err == nil:
			c.metrics.IncOrderCacheLookup("hit")
			span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, true))
			return order, nil
		case errors.Is(err, cache.ErrNotFound):
			c.metrics.IncOrderCacheLookup("miss")
		default:
			c.metrics.IncOrderCacheLookup("error")
			c.logger.WarnContext(ctx, "order cache lookup failed", "order_id", orderID, "error", err)
		}
	}
	span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, false))
	if c.reader == nil {
		return nil, errors.New("no order reader configured")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	order, err := c.reader.FetchOrder(fetchCtx, orderID)
	if err != nil {
		span.SetAttributes(tracer.Bool(tracer.AttrBreakerOpen, gateway.KindOf(err) == gateway.KindCircuitOpen))
		return nil, err
	}
	if c.orders != nil {
		if err := c.orders.Put(ctx, order); err != nil {
			c.logger.WarnContext(ctx, "failed to cache order", "order_id", orderID, "error", err)
		}
	}
	return order, nil
}
