// Package tracer is a small tracing seam over OpenTelemetry. Services depend on
// the Tracer interface; production wires OTelTracer and tests use NoopTracer.
package tracer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Span represents an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span. A non-nil err marks the span as failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
//	ctx, span := t.Start(ctx, tracer.SpanGatewayFetchOrder, tracer.String(tracer.AttrOrderID, id))
//	defer func() { span.End(err) }()
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is an OpenTelemetry key-value pair. The noop tracer ignores it.
type Attribute = attribute.KeyValue

func String(key, value string) Attribute { return attribute.String(key, value) }

func Bool(key string, value bool) Attribute { return attribute.Bool(key, value) }

func Int64(key string, value int64) Attribute { return attribute.Int64(key, value) }

func Int(key string, value int) Attribute { return attribute.Int(key, value) }

// Duration records value in whole milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return attribute.Int64(key, value.Milliseconds())
}

const (
	SpanGatewayCreateOrder = "gateway.create_order"
	SpanGatewayFetchOrder  = "gateway.fetch_order"
	SpanConfirmDirect      = "payment.confirm_direct"
	SpanConfirmWebhook     = "payment.confirm_webhook"
	SpanReconcile          = "registration.reconcile"
)

const (
	AttrOrderID     = "order.id"
	AttrPaymentID   = "payment.id"
	AttrSource      = "payment.source"
	AttrTrust       = "payment.trust"
	AttrHTTPStatus  = "http.status_code"
	AttrCacheHit    = "cache.hit"
	AttrAttempt     = "reconcile.attempt"
	AttrDuplicate   = "reconcile.duplicate"
	AttrBreakerOpen = "circuit.open"
	AttrErrorCode   = "error.code"
)

const (
	EventFallbackUsed = "trusted_events.fallback"
	EventConflict     = "reconcile.conflict"
)
