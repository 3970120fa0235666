package querytext

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultParseCacheSize is the number of parsed texts a Service keeps by default.
const DefaultParseCacheSize = 256

// Config controls optional Service behaviours.
type Config struct {
	// Logger receives debug output. Nil selects slog.Default().
	Logger *slog.Logger

	// TracerProvider and MeterProvider enable OpenTelemetry. Nil providers
	// disable the corresponding signal.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	// ServiceName is recorded on every span.
	ServiceName string

	// MaxDepth bounds the nesting of parsed text. Non-positive selects 128.
	MaxDepth int

	// ParseCacheSize is the number of parsed texts kept. Zero disables the cache.
	ParseCacheSize int
}

// Option configures a Service.
type Option func(*Config)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.TracerProvider = tp
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) {
		c.MeterProvider = mp
	}
}

// WithServiceName sets the service name recorded on spans.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithMaxDepth bounds the nesting depth of parsed text.
func WithMaxDepth(depth int) Option {
	return func(c *Config) {
		c.MaxDepth = depth
	}
}

// WithParseCacheSize sets the parse cache capacity. Zero disables caching.
func WithParseCacheSize(size int) Option {
	return func(c *Config) {
		c.ParseCacheSize = size
	}
}

func newConfig(opts []Option) *Config {
	cfg := &Config{ParseCacheSize: DefaultParseCacheSize}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}
