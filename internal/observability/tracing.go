package observability

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nlstn/go-querytext/internal/qerrors"
)

// Tracer wraps an OpenTelemetry tracer with query text span creation methods.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// NewTracer creates a new Tracer using the given TracerProvider.
func NewTracer(tp trace.TracerProvider, serviceName string) *Tracer {
	return &Tracer{
		tracer:      tp.Tracer(TracerName),
		serviceName: serviceName,
	}
}

func (t *Tracer) start(ctx context.Context, name string, attrs []attribute.KeyValue) (context.Context, trace.Span) {
	if t.serviceName != "" {
		attrs = append(attrs, attribute.String("service.name", t.serviceName))
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartSpan starts a new span with the given name and attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.start(ctx, name, attrs)
}

// StartParse starts a span for parsing query text against rootType.
func (t *Tracer) StartParse(ctx context.Context, operation, rootType string, textLen int) (context.Context, trace.Span) {
	return t.start(ctx, "querytext.parse", []attribute.KeyValue{
		OperationAttr(operation),
		RootTypeAttr(rootType),
		TextLengthAttr(textLen),
	})
}

// StartRender starts a span for rendering an expression.
func (t *Tracer) StartRender(ctx context.Context, operation string) (context.Context, trace.Span) {
	return t.start(ctx, "querytext.render", []attribute.KeyValue{OperationAttr(operation)})
}

// StartSplit starts a span for splitting an expression or query.
func (t *Tracer) StartSplit(ctx context.Context, operation string) (context.Context, trace.Span) {
	return t.start(ctx, "querytext.split", []attribute.KeyValue{OperationAttr(operation)})
}

// RecordError records an error on the span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(ErrorCodeAttr(ErrorCode(err)))
		span.SetStatus(codes.Error, err.Error())
	}
}

// ErrorCode returns the query error code of err, or "internal" for errors raised
// outside the query error taxonomy.
func ErrorCode(err error) string {
	var qe *qerrors.QueryError
	if errors.As(err, &qe) {
		return string(qe.Code)
	}
	return "internal"
}

// LoggerWithTrace returns a logger enriched with trace context.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return logger
	}
	return logger.With(
		slog.String(LogFieldTraceID, span.SpanContext().TraceID().String()),
		slog.String(LogFieldSpanID, span.SpanContext().SpanID().String()),
	)
}
