// Package service creates payment orders and confirms captured payments.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"eventpay/internal/catalog"
	"eventpay/internal/gateway"
	"eventpay/internal/payment/cache"
	"eventpay/internal/payment/metrics"
	"eventpay/internal/payment/models"
	dErrors "eventpay/pkg/domain-errors"
	"eventpay/pkg/requestcontext"
)

// OrderGateway creates orders at the payment gateway.
type OrderGateway interface {
	CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error)
}

// OrderReader reads an order back from the payment gateway.
type OrderReader interface {
	FetchOrder(ctx context.Context, orderID string) (*gateway.Order, error)
}

const receiptUserIDLength = 10

// OrderService prices a selection of events from the catalog and opens a
// gateway order for it. The client never supplies an amount.
type OrderService struct {
	catalog *catalog.Catalog
	gateway OrderGateway
	reader  OrderReader
	orders  cache.OrderCache
	metrics *metrics.Metrics
	logger  *slog.Logger
	timeout time.Duration
	// currency overrides the catalog's when set.
	currency string
}

type OrderOption func(*OrderService)

func WithOrderCache(c cache.OrderCache) OrderOption {
	return func(s *OrderService) {
		s.orders = c
	}
}

func WithOrderReader(r OrderReader) OrderOption {
	return func(s *OrderService) {
		s.reader = r
	}
}

func WithOrderMetrics(m *metrics.Metrics) OrderOption {
	return func(s *OrderService) {
		s.metrics = m
	}
}

func WithOrderLogger(logger *slog.Logger) OrderOption {
	return func(s *OrderService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOrderTimeout bounds the gateway call. Default is 10s.
func WithOrderTimeout(d time.Duration) OrderOption {
	return func(s *OrderService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithCurrency(code string) OrderOption {
	return func(s *OrderService) {
		s.currency = strings.ToUpper(strings.TrimSpace(code))
	}
}

func NewOrderService(cat *catalog.Catalog, gw OrderGateway, opts ...OrderOption) *OrderService {
	s := &OrderService{
		catalog: cat,
		gateway: gw,
		logger:  slog.New(slog.DiscardHandler),
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder prices eventNames and creates a gateway order carrying the
// trusted event list in its notes. Nothing is stored locally on failure.
func (s *OrderService) CreateOrder(ctx context.Context, in models.CreateOrderInput) (*models.OrderResult, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" || len(in.EventNames) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "userId and eventNames are required")
	}

	names, err := s.catalog.Canonical(in.EventNames)
	if err != nil {
		return nil, s.catalogError(err)
	}
	if len(names) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "userId and eventNames are required")
	}
	total, err := s.catalog.TotalPrice(names)
	if err != nil {
		return nil, s.catalogError(err)
	}
	if total == 0 {
		s.metrics.IncOrderFailure("free")
		return nil, dErrors.New(dErrors.CodeValidation, "selected events are free, no payment required")
	}

	now := requestcontext.Now(ctx)
	req := gateway.CreateOrderRequest{
		Amount:   total * catalog.MinorUnitsPerMajor,
		Currency: s.orderCurrency(),
		Receipt:  Receipt(userID, now),
		Notes: gateway.Notes{
			gateway.NoteUserID:     userID,
			gateway.NoteUserEmail:  strings.TrimSpace(in.UserEmail),
			gateway.NoteEventNames: gateway.JoinEventNames(names),
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	order, err := s.gateway.CreateOrder(callCtx, req)
	if err != nil {
		s.metrics.IncOrderFailure(string(gateway.KindOf(err)))
		s.logger.ErrorContext(ctx, "order creation failed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"amount", req.Amount,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "order creation failed")
	}

	if s.orders != nil {
		if err := s.orders.Put(ctx, order); err != nil {
			s.logger.WarnContext(ctx, "failed to cache order", "order_id", order.ID, "error", err)
		}
	}
	s.metrics.IncOrdersCreated()
	s.logger.InfoContext(ctx, "order created",
		"request_id", requestcontext.RequestID(ctx),
		"order_id", order.ID,
		"user_id", userID,
		"amount", order.Amount,
		"events", names,
	)

	return &models.OrderResult{
		OrderID:     order.ID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Receipt:     order.Receipt,
		EventNames:  names,
		TotalAmount: total,
	}, nil
}

// PaymentStatus passes the gateway's view of an order through. It has no side effects.
func (s *OrderService) PaymentStatus(ctx context.Context, orderID string) (*models.PaymentStatus, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "orderId is required")
	}
	if s.reader == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "order lookups are not configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	order, err := s.reader.FetchOrder(callCtx, orderID)
	if err != nil {
		if gateway.KindOf(err) == gateway.KindNotFound {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "order not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to fetch order status")
	}
	return &models.PaymentStatus{
		OrderID:   order.ID,
		Status:    order.Status,
		Amount:    order.Amount,
		Currency:  order.Currency,
		CreatedAt: order.CreatedTime(),
	}, nil
}

func (s *OrderService) catalogError(err error) error {
	if errors.Is(err, catalog.ErrUnknownEvent) {
		s.metrics.IncOrderFailure("unknown_event")
		return dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to price events")
}

// Receipt builds the merchant receipt id: rcpt_<first 10 of userID>_<unix nanos base36>.
// The result never exceeds the gateway's 40 character limit.
func Receipt(userID string, now time.Time) string {
	userID = truncateUTF8(userID, receiptUserIDLength)
	r := "rcpt_" + userID + "_" + strconv.FormatInt(now.UnixNano(), 36)
	if len(r) > gateway.MaxReceiptLength {
		r = r[:gateway.MaxReceiptLength]
	}
	return r
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	end := 0
	for i := range s {
		if i > n {
			break
		}
		end = i
	}
	return s[:end]
}

func (s *OrderService) orderCurrency() string {
	if s.currency != "" {
		return s.currency
	}
	return s.catalog.Currency()
}
