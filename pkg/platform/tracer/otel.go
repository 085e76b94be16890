package tracer

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "eventpay/pkg/domain-errors"
)

const instrumentationName = "eventpay"

// OTelTracer starts OpenTelemetry spans. Spans named "gateway.*" are client
// spans; everything else is internal.
type OTelTracer struct {
	tracer trace.Tracer
}

type OTelOption func(*OTelTracer)

func WithOTelTracer(t trace.Tracer) OTelOption {
	return func(o *OTelTracer) { o.tracer = t }
}

// NewOTel resolves the tracer from the global provider unless one is given,
// so it follows whatever exporter main installs.
func NewOTel(opts ...OTelOption) *OTelTracer {
	t := &OTelTracer{}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(instrumentationName)
	}
	return t
}

func (t *OTelTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(kindFor(name)),
		trace.WithAttributes(attrs...),
	)
	return ctx, otelSpan{span}
}

func kindFor(name string) trace.SpanKind {
	if strings.HasPrefix(name, "gateway.") {
		return trace.SpanKindClient
	}
	return trace.SpanKindInternal
}

type otelSpan struct {
	trace.Span
}

// End marks the span failed when err is non-nil and tags it with the
// domain code, if any.
func (s otelSpan) End(err error) {
	if err != nil {
		if code, ok := dErrors.CodeOf(err); ok {
			s.Span.SetAttributes(String(AttrErrorCode, string(code)))
		}
		s.Span.RecordError(err)
		s.Span.SetStatus(codes.Error, err.Error())
	}
	s.Span.End()
}

func (s otelSpan) SetAttributes(attrs ...Attribute) {
	s.Span.SetAttributes(attrs...)
}

func (s otelSpan) AddEvent(name string, attrs ...Attribute) {
	s.Span.AddEvent(name, trace.WithAttributes(attrs...))
}

var (
	_ Tracer = (*OTelTracer)(nil)
	_ Span   = otelSpan{}
)
