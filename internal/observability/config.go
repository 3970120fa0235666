package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is recorded on spans when no name is configured.
const DefaultServiceName = "querytext"

// Config binds the tracer and metric instruments of one Service. A nil *Config
// is usable and records nothing.
type Config struct {
	// TracerProvider enables spans. Nil disables tracing.
	TracerProvider trace.TracerProvider

	// MeterProvider enables metrics. Nil disables metrics.
	MeterProvider metric.MeterProvider

	ServiceName string

	tracer  *Tracer
	metrics *Metrics
}

// Option configures a Config.
type Option func(*Config)

// WithTracerProvider enables tracing through tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) { c.TracerProvider = tp }
}

// WithMeterProvider enables metrics through mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) { c.MeterProvider = mp }
}

// WithServiceName overrides DefaultServiceName.
func WithServiceName(name string) Option {
	return func(c *Config) { c.ServiceName = name }
}

// NewConfig applies opts and builds the instruments. Missing providers fall back
// to the no-op implementations.
func NewConfig(opts ...Option) *Config {
	c := &Config{ServiceName: DefaultServiceName}
	for _, opt := range opts {
		opt(c)
	}

	c.tracer = NewNoopTracer()
	if c.TracerProvider != nil {
		c.tracer = NewTracer(c.TracerProvider, c.ServiceName)
	}
	c.metrics = NewNoopMetrics()
	if c.MeterProvider != nil {
		c.metrics = NewMetrics(c.MeterProvider)
	}
	return c
}

// Tracer returns the span factory, never nil.
func (c *Config) Tracer() *Tracer {
	if c == nil || c.tracer == nil {
		return NewNoopTracer()
	}
	return c.tracer
}

// Metrics returns the metric instruments, never nil.
func (c *Config) Metrics() *Metrics {
	if c == nil || c.metrics == nil {
		return NewNoopMetrics()
	}
	return c.metrics
}

// IsEnabled reports whether a tracer or meter provider was configured.
func (c *Config) IsEnabled() bool {
	return c != nil && (c.TracerProvider != nil || c.MeterProvider != nil)
}

// Operation is one instrumented call: a span plus the metrics recorded when it
// ends.
type Operation struct {
	name    string
	start   time.Time
	span    trace.Span
	tracer  *Tracer
	metrics *Metrics
}

// Begin starts an operation named op on span. The caller obtains span from one
// of the Tracer Start methods so that each operation family keeps its span name.
func (c *Config) Begin(op string, span trace.Span) *Operation {
	return &Operation{
		name:    op,
		start:   time.Now(),
		span:    span,
		tracer:  c.Tracer(),
		metrics: c.Metrics(),
	}
}

// Span returns the operation span.
func (o *Operation) Span() trace.Span { return o.span }

// Slots records the slot count of a split on both the span and the histogram.
func (o *Operation) Slots(ctx context.Context, n int) {
	o.span.SetAttributes(SlotCountAttr(n))
	o.metrics.RecordSplitSlots(ctx, o.name, n)
}

// End records the outcome of the operation and closes its span.
func (o *Operation) End(ctx context.Context, err error) {
	o.tracer.RecordError(o.span, err)
	o.metrics.RecordOperation(ctx, o.name, time.Since(o.start), err)
	o.span.End()
}
