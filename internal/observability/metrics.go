package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the query text metric instruments.
type Metrics struct {
	operationCount    metric.Int64Counter
	operationDuration metric.Float64Histogram
	errorCount        metric.Int64Counter
	splitSlots        metric.Int64Histogram
}

// NewMetrics creates a new Metrics instance with the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	// Instrument creation only fails for invalid parameters; fall back to the bare
	// instrument so that recording never dereferences nil.
	var err error

	m.operationCount, err = meter.Int64Counter(
		"querytext.operation.count",
		metric.WithDescription("Number of parse, render and split operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		m.operationCount, _ = meter.Int64Counter("querytext.operation.count")
	}

	m.operationDuration, err = meter.Float64Histogram(
		"querytext.operation.duration",
		metric.WithDescription("Duration of parse, render and split operations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.operationDuration, _ = meter.Float64Histogram("querytext.operation.duration")
	}

	m.errorCount, err = meter.Int64Counter(
		"querytext.error.count",
		metric.WithDescription("Number of failed operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.errorCount, _ = meter.Int64Counter("querytext.error.count")
	}

	m.splitSlots, err = meter.Int64Histogram(
		"querytext.split.slots",
		metric.WithDescription("Number of remote slots produced by a split"),
		metric.WithUnit("{slot}"),
	)
	if err != nil {
		m.splitSlots, _ = meter.Int64Histogram("querytext.split.slots")
	}

	return m
}

// RecordOperation records a completed operation. A non-nil err also counts as an
// error under its query error code.
func (m *Metrics) RecordOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(OperationAttr(operation))
	m.operationCount.Add(ctx, 1, attrs)
	m.operationDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(OperationAttr(operation), ErrorCodeAttr(ErrorCode(err))))
	}
}

// RecordSplitSlots records the number of slots of a split.
func (m *Metrics) RecordSplitSlots(ctx context.Context, operation string, slots int) {
	m.splitSlots.Record(ctx, int64(slots), metric.WithAttributes(OperationAttr(operation)))
}
