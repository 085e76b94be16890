package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestKindFor(t *testing.T) {
	assert.Equal(t, trace.SpanKindClient, kindFor(SpanGatewayFetchOrder))
	assert.Equal(t, trace.SpanKindClient, kindFor(SpanGatewayCreateOrder))
	assert.Equal(t, trace.SpanKindInternal, kindFor(SpanReconcile))
}

func TestDurationIsMilliseconds(t *testing.T) {
	assert.Equal(t, int64(1500), Duration("elapsed", 1500*1e6).Value.AsInt64())
}
