// Package split divides an expression into the part that can be sent as query text
// and the part that must run in process.
//
// Split classifies every node of a lambda body once. A node is remote when the
// encoder can write it and all of its children are remote. Every maximal remote
// subtree that reads the lambda parameter becomes a slot: the remote fragment
// returns the slot values as a tuple and the residual reads them back by position.
package split

import (
	"fmt"
	"reflect"

	"github.com/nlstn/go-querytext/expr"
	"github.com/nlstn/go-querytext/internal/qerrors"
	"github.com/nlstn/go-querytext/internal/render"
	"github.com/nlstn/go-querytext/queryshape"
)

// RowName is the parameter name of residual lambdas.
const RowName = "this"

// Result is a split lambda. Remote maps the original parameter to a []any holding
// one value per slot. Residual maps that []any to the original result.
type Result struct {
	Remote   *expr.Lambda
	Residual *expr.Lambda
	// Slots are the remote subtrees in the order of the Remote tuple.
	Slots []expr.Expr
}

// Builder splits lambdas and query chains. It holds no per-call state and is safe
// for concurrent use.
type Builder struct {
	enc      *render.Encoder
	registry *queryshape.Registry
}

// NewBuilder returns a Builder. Nil arguments are replaced by defaults.
func NewBuilder(enc *render.Encoder, registry *queryshape.Registry) *Builder {
	if enc == nil {
		enc = render.New()
	}
	if registry == nil {
		registry = queryshape.NewRegistry()
	}
	return &Builder{enc: enc, registry: registry}
}

// Split divides l, which must take exactly one parameter.
func (b *Builder) Split(l *expr.Lambda) (*Result, error) {
	if len(l.Params) != 1 {
		return nil, qerrors.SplitImpossible("cannot split a lambda with %d parameters", len(l.Params))
	}
	s := &splitter{
		enc:    b.enc,
		root:   l.Params[0],
		row:    expr.NewParameter(RowName, expr.TupleType),
		info:   make(map[expr.Expr]nodeInfo),
		byHash: make(map[uint64][]int),
	}
	s.classify(l.Body)

	body, err := s.rewrite(l.Body)
	if err != nil {
		return nil, err
	}
	tuple, err := expr.NewArrayOf(expr.AnyType, s.slots...)
	if err != nil {
		return nil, fmt.Errorf("building remote tuple: %w", err)
	}
	return &Result{
		Remote:   expr.NewLambda(tuple, s.root),
		Residual: expr.NewLambda(body, s.row),
		Slots:    s.slots,
	}, nil
}

type nodeInfo struct {
	remote bool
	free   map[*expr.Parameter]struct{}
}

type splitter struct {
	enc  *render.Encoder
	root *expr.Parameter
	row  *expr.Parameter
	info map[expr.Expr]nodeInfo

	slots  []expr.Expr
	byHash map[uint64][]int
}

func (s *splitter) classify(e expr.Expr) nodeInfo {
	if info, ok := s.info[e]; ok {
		return info
	}
	info := nodeInfo{remote: s.enc.CanRender(e), free: make(map[*expr.Parameter]struct{})}
	if p, ok := e.(*expr.Parameter); ok {
		info.free[p] = struct{}{}
	}
	for _, c := range expr.Children(e) {
		ci := s.classify(c)
		info.remote = info.remote && ci.remote
		for p := range ci.free {
			info.free[p] = struct{}{}
		}
	}
	if l, ok := e.(*expr.Lambda); ok {
		for _, p := range l.Params {
			delete(info.free, p)
		}
	}
	s.info[e] = info
	return info
}

// readsOnlyRoot holds for subtrees whose only free parameter is the lambda parameter.
func (s *splitter) readsOnlyRoot(info nodeInfo) bool {
	_, ok := info.free[s.root]
	return ok && len(info.free) == 1
}

func (s *splitter) rewrite(e expr.Expr) (expr.Expr, error) {
	info := s.info[e]
	// A lambda has no standalone text, so only parts of its body are slotted.
	if _, isLambda := e.(*expr.Lambda); !isLambda && info.remote && s.readsOnlyRoot(info) {
		return s.slot(e)
	}
	children := expr.Children(e)
	if len(children) == 0 {
		return e, nil
	}
	next := make([]expr.Expr, len(children))
	for i, c := range children {
		r, err := s.rewrite(c)
		if err != nil {
			return nil, err
		}
		next[i] = r
	}
	r, err := expr.Rebuild(e, next)
	if err != nil {
		return nil, fmt.Errorf("rebuilding %s: %w", e.Kind(), err)
	}
	return r, nil
}

// slot returns the residual read of e, adding e to the slots unless a structurally
// equal subtree is already there.
func (s *splitter) slot(e expr.Expr) (expr.Expr, error) {
	h := expr.Hash(e)
	i := -1
	for _, j := range s.byHash[h] {
		if expr.StructuralEqual(s.slots[j], e) {
			i = j
			break
		}
	}
	if i < 0 {
		i = len(s.slots)
		s.slots = append(s.slots, e)
		s.byHash[h] = append(s.byHash[h], i)
	}
	return slotRead(s.row, i, e.Type())
}

func slotRead(row expr.Expr, i int, t reflect.Type) (expr.Expr, error) {
	idx, err := expr.NewIndex(row, expr.NewConstant(i))
	if err != nil {
		return nil, err
	}
	if t == expr.AnyType {
		return idx, nil
	}
	return expr.Convert(idx, t)
}
