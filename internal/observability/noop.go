package observability

import (
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// NewNoopTracer creates a tracer that does nothing.
func NewNoopTracer() *Tracer {
	return &Tracer{
		tracer: tracenoop.NewTracerProvider().Tracer(""),
	}
}

// NewNoopMetrics creates metrics that do nothing.
func NewNoopMetrics() *Metrics {
	meter := noop.NewMeterProvider().Meter("")
	m := &Metrics{}

	// Note: noop meter never returns errors, but we must check them to satisfy the linter.
	m.operationCount, _ = meter.Int64Counter("querytext.operation.count")           //nolint:errcheck
	m.operationDuration, _ = meter.Float64Histogram("querytext.operation.duration") //nolint:errcheck
	m.errorCount, _ = meter.Int64Counter("querytext.error.count")                   //nolint:errcheck
	m.splitSlots, _ = meter.Int64Histogram("querytext.split.slots")                 //nolint:errcheck

	return m
}
