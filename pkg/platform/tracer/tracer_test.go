package tracer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"eventpay/pkg/platform/tracer"
)

func TestNoopTracer(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	newCtx, span := tr.Start(ctx, tracer.SpanReconcile, tracer.String(tracer.AttrPaymentID, "pay_1"))

	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)
	span.SetAttributes(tracer.Int(tracer.AttrAttempt, 2))
	span.AddEvent(tracer.EventConflict)
	span.End(errors.New("conflict"))
}

func TestOTelTracer(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))

	_, span := tr.Start(context.Background(), tracer.SpanGatewayFetchOrder,
		tracer.String(tracer.AttrOrderID, "order_1"),
		tracer.Bool(tracer.AttrCacheHit, false),
		tracer.Duration("timeout", 3*time.Second),
	)
	require.NotNil(t, span)
	span.SetAttributes(tracer.Int(tracer.AttrHTTPStatus, 200), tracer.Int64("amount", 12000))
	span.End(nil)
}
