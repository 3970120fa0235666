// Package observability instruments query text operations with OpenTelemetry.
//
// Tracing and metrics are opt-in. Without a configured provider the no-op
// implementations from the OpenTelemetry API are used.
package observability

import "go.opentelemetry.io/otel/attribute"

// Instrumentation identity constants
const (
	// TracerName is the instrumentation name for tracing.
	TracerName = "github.com/nlstn/go-querytext"
	// MeterName is the instrumentation name for metrics.
	MeterName = "github.com/nlstn/go-querytext"
)

// Attribute keys.
const (
	AttrOperation  = "querytext.operation"
	AttrRootType   = "querytext.root_type"
	AttrTextLength = "querytext.text.length"
	AttrCacheHit   = "querytext.cache.hit"
	AttrSlotCount  = "querytext.split.slots"
	AttrErrorCode  = "querytext.error.code"
)

// Operation names for the querytext.operation attribute.
const (
	OpParseFilter  = "parse_filter"
	OpParseSelect  = "parse_select"
	OpRender       = "render"
	OpRenderSelect = "render_select"
	OpSplit        = "split"
	OpSplitQuery   = "split_query"
)

// Log field keys for structured logging with trace context.
const (
	LogFieldOperation = "querytext.operation"
	LogFieldTraceID   = "trace_id"
	LogFieldSpanID    = "span_id"
)

// OperationAttr creates an attribute for the operation name.
func OperationAttr(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// RootTypeAttr creates an attribute for the Go type a query is parsed against.
func RootTypeAttr(name string) attribute.KeyValue {
	return attribute.String(AttrRootType, name)
}

func TextLengthAttr(n int) attribute.KeyValue {
	return attribute.Int(AttrTextLength, n)
}

func CacheHitAttr(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

func SlotCountAttr(n int) attribute.KeyValue {
	return attribute.Int(AttrSlotCount, n)
}

// ErrorCodeAttr creates an attribute for a query error code.
func ErrorCodeAttr(code string) attribute.KeyValue {
	return attribute.String(AttrErrorCode, code)
}
