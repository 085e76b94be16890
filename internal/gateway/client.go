// Package gateway is the payment gateway REST client used to create and read
// back orders.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventpay/pkg/platform/circuit"
	"eventpay/pkg/platform/tracer"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxResponseBytes = 1 << 20

// Client calls the gateway's order API with basic auth.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      HTTPDoer
	timeout   time.Duration
	breaker   *circuit.Breaker
	tracer    tracer.Tracer
	logger    *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithTimeout bounds each call. Callers may pass a shorter deadline through ctx.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(baseURL, keyID, keySecret string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		timeout:   10 * time.Second,
		tracer:    tracer.NewNoop(),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.breaker == nil {
		c.breaker = circuit.New("gateway", circuit.Settings{}, circuit.OnTransition(LogTransition(c.logger)))
	}
	return c
}

// CreateOrder creates an order. Nothing is persisted locally, so a failed call
// leaves no state behind.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (order *Order, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanGatewayCreateOrder,
		tracer.Int64("order.amount", req.Amount),
		tracer.String("order.receipt", req.Receipt),
	)
	defer func() { span.End(err) }()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "create_order", Err: err}
	}

	order = &Order{}
	if err := c.do(ctx, "create_order", http.MethodPost, "/v1/orders", body, order); err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrOrderID, order.ID))
	return order, nil
}

// FetchOrder reads an order back by id.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (order *Order, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanGatewayFetchOrder, tracer.String(tracer.AttrOrderID, orderID))
	defer func() { span.End(err) }()

	if strings.TrimSpace(orderID) == "" {
		return nil, &Error{Kind: KindRejected, Op: "fetch_order", Description: "order id is required"}
	}

	order = &Order{}
	if err := c.do(ctx, "fetch_order", http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	if c.breaker.Allow() != nil {
		return &Error{Kind: KindCircuitOpen, Op: op, Err: ErrCircuitOpen}
	}

	err := c.roundTrip(ctx, op, method, path, body, out)
	// A 4xx means the gateway is up and answering.
	c.breaker.Done(err == nil || !IsRetryable(err))
	if err != nil && IsRetryable(err) {
		c.logger.DebugContext(ctx, "gateway call failed", "op", op, "error", err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindRejected, Op: op, Err: err}
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return &Error{Kind: KindTimeout, Op: op, Err: err}
		}
		return &Error{Kind: KindUnavailable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Kind: KindUnavailable, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 300 {
		return classifyStatus(op, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindBadResponse, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func classifyStatus(op string, status int, body []byte) *Error {
	gerr := &Error{Op: op, StatusCode: status}
	var apiErr apiErrorBody
	if json.Unmarshal(body, &apiErr) == nil {
		gerr.Code = apiErr.Error.Code
		gerr.Description = apiErr.Error.Description
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		gerr.Kind = KindAuth
	case status == http.StatusNotFound:
		gerr.Kind = KindNotFound
	case status == http.StatusTooManyRequests:
		gerr.Kind = KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		gerr.Kind = KindTimeout
	case status >= 500:
		gerr.Kind = KindUnavailable
	default:
		gerr.Kind = KindRejected
	}
	if gerr.Description == "" {
		gerr.Description = fmt.Sprintf("unexpected status %d", status)
	}
	return gerr
}

// LogTransition returns a circuit.Transition that logs state changes.
func LogTransition(logger *slog.Logger) circuit.Transition {
	return func(name string, from, to circuit.State) {
		level := slog.LevelInfo
		if to == circuit.StateOpen {
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "gateway circuit "+to.String(), "breaker", name, "from", from.String())
	}
}
