// Package querytext translates between a textual query language and typed
// expression trees.
//
// A Service parses filter and select text into expr.Lambda values over a Go
// type, renders expressions back into text, and splits expressions and query
// chains into a part a remote server can evaluate and a part that must run in
// process.
package querytext

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
	"go.opentelemetry.io/otel/trace"

	"github.com/nlstn/go-querytext/expr"
	"github.com/nlstn/go-querytext/internal/ast"
	"github.com/nlstn/go-querytext/internal/convert"
	"github.com/nlstn/go-querytext/internal/observability"
	"github.com/nlstn/go-querytext/internal/render"
	"github.com/nlstn/go-querytext/internal/split"
	"github.com/nlstn/go-querytext/queryshape"
)

// SplitResult is a lambda divided into a remote fragment and a local residual.
type SplitResult = split.Result

// QueryPlan is a query chain divided into a remote request and a local residual.
type QueryPlan = split.QueryPlan

// Service is the entry point for parsing, rendering and splitting. It is safe
// for concurrent use.
type Service struct {
	logger   *slog.Logger
	obs      *observability.Config
	builder  *ast.Builder
	encoder  *render.Encoder
	registry *queryshape.Registry
	splitter *split.Builder
	cache    *lru.Cache
}

type parseKind string

const (
	kindFilter parseKind = "filter"
	kindSelect parseKind = "select"
)

// cacheEntry keeps the text it was parsed from so that hash collisions are
// detected on lookup.
type cacheEntry struct {
	kind  parseKind
	text  string
	nodes []ast.Node
}

// NewService returns a Service configured by opts.
func NewService(opts ...Option) (*Service, error) {
	cfg := newConfig(opts)
	if cfg.ParseCacheSize < 0 {
		return nil, fmt.Errorf("parse cache size must not be negative, got %d", cfg.ParseCacheSize)
	}

	obsOpts := []observability.Option{
		observability.WithTracerProvider(cfg.TracerProvider),
		observability.WithMeterProvider(cfg.MeterProvider),
	}
	if cfg.ServiceName != "" {
		obsOpts = append(obsOpts, observability.WithServiceName(cfg.ServiceName))
	}

	s := &Service{
		logger:   cfg.Logger,
		obs:      observability.NewConfig(obsOpts...),
		builder:  ast.NewBuilder(cfg.MaxDepth),
		encoder:  render.New(),
		registry: queryshape.NewRegistry(),
	}
	s.splitter = split.NewBuilder(s.encoder, s.registry)

	if cfg.ParseCacheSize > 0 {
		cache, err := lru.New(cfg.ParseCacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating parse cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// ParseFilter parses a boolean filter over values of rootType. A nil resolver
// selects a reflection resolver with no registered types.
func (s *Service) ParseFilter(ctx context.Context, text string, rootType reflect.Type, resolver Resolver) (l *expr.Lambda, err error) {
	ctx, span := s.obs.Tracer().StartParse(ctx, observability.OpParseFilter, typeLabel(rootType), len(text))
	op := s.obs.Begin(observability.OpParseFilter, span)
	defer func() { op.End(ctx, err) }()

	if resolver, err = s.resolverOrDefault(resolver); err != nil {
		return nil, err
	}
	nodes, err := s.parse(ctx, op.Span(), kindFilter, text)
	if err != nil {
		return nil, err
	}
	return convert.Filter(nodes[0], rootType, resolver)
}

// ParseSelect parses a comma separated projection over values of rootType.
// A single item selects its value. Several items select a []any tuple.
func (s *Service) ParseSelect(ctx context.Context, text string, rootType reflect.Type, resolver Resolver) (l *expr.Lambda, err error) {
	ctx, span := s.obs.Tracer().StartParse(ctx, observability.OpParseSelect, typeLabel(rootType), len(text))
	op := s.obs.Begin(observability.OpParseSelect, span)
	defer func() { op.End(ctx, err) }()

	if resolver, err = s.resolverOrDefault(resolver); err != nil {
		return nil, err
	}
	nodes, err := s.parse(ctx, op.Span(), kindSelect, text)
	if err != nil {
		return nil, err
	}
	return convert.Select(nodes, rootType, resolver)
}

// Render writes e as query text. A lambda renders as its body over the
// implicit root.
func (s *Service) Render(ctx context.Context, e expr.Expr) (text string, err error) {
	ctx, span := s.obs.Tracer().StartRender(ctx, observability.OpRender)
	op := s.obs.Begin(observability.OpRender, span)
	defer func() { op.End(ctx, err) }()

	return s.encoder.Render(e)
}

// RenderSelect writes a projection lambda as select text.
func (s *Service) RenderSelect(ctx context.Context, l *expr.Lambda) (text string, err error) {
	ctx, span := s.obs.Tracer().StartRender(ctx, observability.OpRenderSelect)
	op := s.obs.Begin(observability.OpRenderSelect, span)
	defer func() { op.End(ctx, err) }()

	return s.encoder.RenderSelect(l)
}

// Split divides a one-parameter lambda into a remote fragment and a residual.
func (s *Service) Split(ctx context.Context, l *expr.Lambda) (res *SplitResult, err error) {
	ctx, span := s.obs.Tracer().StartSplit(ctx, observability.OpSplit)
	op := s.obs.Begin(observability.OpSplit, span)
	defer func() { op.End(ctx, err) }()

	if res, err = s.splitter.Split(l); err != nil {
		return nil, err
	}
	op.Slots(ctx, len(res.Slots))
	s.log(ctx).Debug("lambda split",
		slog.String(observability.LogFieldOperation, observability.OpSplit),
		slog.Int("slots", len(res.Slots)))
	return res, nil
}

// SplitQuery divides a query chain over a single query root into a remote
// request and a residual over the returned rows.
func (s *Service) SplitQuery(ctx context.Context, q expr.Expr) (plan *QueryPlan, err error) {
	ctx, span := s.obs.Tracer().StartSplit(ctx, observability.OpSplitQuery)
	op := s.obs.Begin(observability.OpSplitQuery, span)
	defer func() { op.End(ctx, err) }()

	if plan, err = s.splitter.SplitQuery(q); err != nil {
		return nil, err
	}
	slots := 0
	if plan.RowType == expr.TupleType && plan.Select != nil {
		if arr, ok := plan.Select.Body.(*expr.NewArray); ok {
			slots = len(arr.Elems)
		}
	}
	op.Slots(ctx, slots)
	s.log(ctx).Debug("query split",
		slog.String(observability.LogFieldOperation, observability.OpSplitQuery),
		slog.String("root", plan.Root.Name),
		slog.Int("slots", slots),
		slog.Bool("remote_filter", plan.Filter != nil),
		slog.Bool("remote_select", plan.Select != nil))
	return plan, nil
}

// Wrap returns the query shape view of e, or false when e is not a shape call.
func (s *Service) Wrap(e expr.Expr) (queryshape.Node, bool) {
	return s.registry.Wrap(e)
}

// Registry returns the query shape registry used by Wrap and SplitQuery.
func (s *Service) Registry() *queryshape.Registry {
	return s.registry
}

func (s *Service) parse(ctx context.Context, span trace.Span, kind parseKind, text string) ([]ast.Node, error) {
	var key uint64
	if s.cache != nil {
		key = cacheKey(kind, text)
		if v, ok := s.cache.Get(key); ok {
			if entry := v.(cacheEntry); entry.kind == kind && entry.text == text {
				span.SetAttributes(observability.CacheHitAttr(true))
				s.log(ctx).Debug("parse cache hit", slog.String("kind", string(kind)), slog.String("text", text))
				return entry.nodes, nil
			}
		}
		span.SetAttributes(observability.CacheHitAttr(false))
		s.log(ctx).Debug("parse cache miss", slog.String("kind", string(kind)), slog.String("text", text))
	}

	var nodes []ast.Node
	switch kind {
	case kindSelect:
		items, err := s.builder.ParseList(text)
		if err != nil {
			return nil, err
		}
		nodes = items
	default:
		node, err := s.builder.Parse(text)
		if err != nil {
			return nil, err
		}
		nodes = []ast.Node{node}
	}

	if s.cache != nil {
		s.cache.Add(key, cacheEntry{kind: kind, text: text, nodes: nodes})
	}
	return nodes, nil
}

func cacheKey(kind parseKind, text string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(string(kind))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(text)
	return d.Sum64()
}

func (s *Service) resolverOrDefault(r Resolver) (Resolver, error) {
	if r != nil {
		return r, nil
	}
	return NewResolver()
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return observability.LoggerWithTrace(ctx, s.logger)
}

// CacheLen reports the number of parsed texts currently cached.
func (s *Service) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}

func typeLabel(t reflect.Type) string {
	if t == nil {
		return ""
	}
	return t.String()
}
