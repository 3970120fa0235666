package queryshape

import (
	"fmt"

	"github.com/nlstn/go-querytext/expr"
)

// factory describes how to recognize and wrap one shape.
type factory struct {
	method *expr.Method
	// minArgs and maxArgs bound the argument count, source included.
	minArgs, maxArgs int
	// lambdas lists the argument positions that must be lambdas.
	lambdas []int
	wrap    func(s *shape) Node
}

// shapes is the table of known shapes, keyed by kind.
var shapes = map[Kind]factory{
	KindWhere:          {expr.MethodWhere, 2, 2, []int{1}, func(s *shape) Node { return &Where{s} }},
	KindSelect:         {expr.MethodSelect, 2, 2, []int{1}, func(s *shape) Node { return &Select{s} }},
	KindSelectMany:     {expr.MethodSelectMany, 2, 2, []int{1}, func(s *shape) Node { return &SelectMany{s} }},
	KindSkip:           {expr.MethodSkip, 2, 2, nil, func(s *shape) Node { return &Skip{s} }},
	KindTake:           {expr.MethodTake, 2, 2, nil, func(s *shape) Node { return &Take{s} }},
	KindGroupBy:        {expr.MethodGroupBy, 2, 3, []int{1, 2}, func(s *shape) Node { return &GroupBy{s} }},
	KindOfType:         {expr.MethodOfType, 2, 2, nil, func(s *shape) Node { return &OfType{s} }},
	KindDistinct:       {expr.MethodDistinct, 1, 1, nil, func(s *shape) Node { return &Distinct{s} }},
	KindZip:            {expr.MethodZip, 3, 3, []int{2}, func(s *shape) Node { return &Zip{s} }},
	KindDefaultIfEmpty: {expr.MethodDefaultIfEmpty, 1, 2, nil, func(s *shape) Node { return &DefaultIfEmpty{s} }},
}

// Registry recognizes query shapes in expression trees. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	kinds    []Kind
	byMethod map[*expr.Method]Kind
}

// NewRegistry returns a registry knowing every shape.
func NewRegistry() *Registry {
	r := &Registry{byMethod: make(map[*expr.Method]Kind, len(shapes))}
	for k := KindWhere; k <= KindDefaultIfEmpty; k++ {
		r.kinds = append(r.kinds, k)
		r.byMethod[shapes[k].method] = k
	}
	return r
}

// Kinds returns the shapes the registry recognizes.
func (r *Registry) Kinds() []Kind { return append([]Kind(nil), r.kinds...) }

// Wrap returns the shape node for e, or false when e is not a query shape call.
func (r *Registry) Wrap(e expr.Expr) (Node, bool) {
	call, ok := e.(*expr.Call)
	if !ok {
		return nil, false
	}
	kind, ok := r.byMethod[call.Method]
	if !ok {
		return nil, false
	}
	n, err := r.Build(kind, call, nil)
	if err != nil {
		return nil, false
	}
	return n, true
}

func (r *Registry) wrapOrRoot(e expr.Expr) Node {
	if n, ok := r.Wrap(e); ok {
		return n
	}
	return NewRoot(e)
}

// Build wraps call as a shape of the given kind. source, when not nil, becomes the
// node's Source and must wrap the identical expression passed as the call's first
// argument.
func (r *Registry) Build(kind Kind, call *expr.Call, source Node) (Node, error) {
	f, ok := shapes[kind]
	if !ok {
		return nil, fmt.Errorf("unknown query shape %s", kind)
	}
	if call.Method != f.method {
		return nil, fmt.Errorf("%s shape requires method %s, got %s", kind, f.method.Name, call.Method.Name)
	}
	if n := len(call.Args); n < f.minArgs || n > f.maxArgs {
		return nil, fmt.Errorf("%s shape takes %d to %d arguments, got %d", kind, f.minArgs, f.maxArgs, n)
	}
	for _, i := range f.lambdas {
		if i >= len(call.Args) {
			continue
		}
		if _, ok := call.Args[i].(*expr.Lambda); !ok {
			return nil, fmt.Errorf("%s shape requires a lambda at argument %d", kind, i)
		}
	}
	if _, ok := expr.ElementType(call.Args[0].Type()); !ok {
		return nil, fmt.Errorf("%s shape requires a collection source, got %s", kind, call.Args[0].Type())
	}
	if source != nil && source.Expr() != call.Args[0] {
		return nil, fmt.Errorf("%s shape source does not wrap the call's first argument", kind)
	}

	s := &shape{kind: kind, call: call, registry: r, source: source}
	s.self = f.wrap(s)
	return s.self, nil
}
