package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/nlstn/go-querytext/expr"
	"github.com/nlstn/go-querytext/internal/qerrors"
)

// builtinTypes are the type names query text can use in isof and cast without
// registration.
var builtinTypes = map[string]reflect.Type{
	"bool":     expr.BoolType,
	"string":   expr.StringType,
	"int32":    expr.Int32Type,
	"int64":    expr.Int64Type,
	"float32":  expr.Float32Type,
	"float64":  expr.Float64Type,
	"decimal":  expr.DecimalType,
	"datetime": expr.TimeType,
	"guid":     expr.UUIDType,
}

// Resolver resolves property names by reflection over struct types and type names
// over a set of registered types. It is safe for concurrent use.
type Resolver struct {
	mu    sync.RWMutex
	types map[reflect.Type]*TypeMetadata
	names map[string]reflect.Type
}

// NewResolver returns a resolver with types registered for isof and cast.
func NewResolver(types ...reflect.Type) (*Resolver, error) {
	r := &Resolver{
		types: make(map[reflect.Type]*TypeMetadata),
		names: make(map[string]reflect.Type),
	}
	for _, t := range types {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register makes t resolvable by its type name.
func (r *Resolver) Register(t reflect.Type) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("type %v has no name", t)
	}
	key := strings.ToLower(t.Name())
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.names[key]; ok && prev != t {
		return fmt.Errorf("type name %s is registered for both %s and %s", t.Name(), prev, t)
	}
	r.names[key] = t
	return nil
}

// Metadata returns the analyzed properties of t, analyzing it on first use.
func (r *Resolver) Metadata(t reflect.Type) (*TypeMetadata, error) {
	r.mu.RLock()
	m, ok := r.types[t]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := AnalyzeType(t)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.types[t]; ok {
		return existing, nil
	}
	r.types[t] = m
	return m, nil
}

// ResolveProperty maps name on the value produced by context to an expression.
// Struct fields resolve to member reads; maps with string keys resolve to lookups.
func (r *Resolver) ResolveProperty(context expr.Expr, name string) (expr.Expr, error) {
	t := context.Type()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		m, err := r.Metadata(t)
		if err != nil {
			return nil, qerrors.UnresolvedWrap(err, "unable to resolve property %s", name)
		}
		p, ok := m.Property(name)
		if !ok {
			return nil, qerrors.Unresolved("unable to resolve property %s on %s", name, t)
		}
		return expr.FieldOf(context, p.Field), nil
	case reflect.Map:
		return MapLookup(context, name)
	}
	return nil, qerrors.Unresolved("unable to resolve property %s on %s", name, context.Type())
}

// MapLookup returns context[key] for a map with a string kind key.
func MapLookup(context expr.Expr, key string) (expr.Expr, error) {
	kt := context.Type().Key()
	if kt.Kind() != reflect.String {
		return nil, qerrors.Unresolved("unable to resolve key %s on %s", key, context.Type())
	}
	c, err := expr.TypedConstant(reflect.ValueOf(key).Convert(kt).Interface(), kt)
	if err != nil {
		return nil, qerrors.UnresolvedWrap(err, "unable to resolve key %s", key)
	}
	idx, err := expr.NewIndex(context, c)
	if err != nil {
		return nil, qerrors.UnresolvedWrap(err, "unable to resolve key %s", key)
	}
	return idx, nil
}

// ResolveType returns the registered or built-in type with the given name.
func (r *Resolver) ResolveType(name string) (reflect.Type, error) {
	key := strings.ToLower(name)
	r.mu.RLock()
	t, ok := r.names[key]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}
	if t, ok := builtinTypes[key]; ok {
		return t, nil
	}
	return nil, qerrors.Unresolved("unable to resolve type %s", name)
}

// TypeName returns the name query text uses for t.
func TypeName(t reflect.Type) string {
	for name, bt := range builtinTypes {
		if bt == t {
			return name
		}
	}
	return t.Name()
}
