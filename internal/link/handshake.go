package link

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/nettables/pkg/metrics"
)

// Handshake traces one handshake from connection open to Ready and
// records its outcome. Only the first call to Done or Fail counts.
type Handshake struct {
	span    trace.Span
	metrics *metrics.Metrics
	start   time.Time
	once    sync.Once
}

// StartHandshake opens a span named name.
func StartHandshake(ctx context.Context, tracer trace.Tracer, m *metrics.Metrics, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, *Handshake) {
	ctx, span := tracer.Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	return ctx, &Handshake{span: span, metrics: m, start: time.Now()}
}

// SetAttributes adds attributes to the span while it is open.
func (h *Handshake) SetAttributes(attrs ...attribute.KeyValue) {
	h.span.SetAttributes(attrs...)
}

// Done ends the span successfully.
func (h *Handshake) Done() {
	h.once.Do(func() {
		h.metrics.Handshake("ok", time.Since(h.start))
		h.span.SetStatus(codes.Ok, "")
		h.span.End()
	})
}

// Fail ends the span with err. result is a short label for metrics.
func (h *Handshake) Fail(result string, err error) {
	h.once.Do(func() {
		h.metrics.Handshake(result, time.Since(h.start))
		h.span.SetAttributes(attribute.String("nettables.handshake.result", result))
		if err != nil {
			h.span.RecordError(err)
			h.span.SetStatus(codes.Error, err.Error())
		} else {
			h.span.SetStatus(codes.Error, result)
		}
		h.span.End()
	})
}
