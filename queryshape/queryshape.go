// Package queryshape overlays typed nodes on expression trees built from the
// standard query operators (Where, Select, Skip, ...).
//
// A shape node wraps one *expr.Call and gives named access to its arguments. Nodes
// are immutable: VisitChildren rebuilds a node only when one of its children changed
// and otherwise returns the receiver itself, so rewriting passes can detect a no-op
// by reference equality.
package queryshape

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/nlstn/go-querytext/expr"
)

// Kind identifies a query shape.
type Kind int

const (
	KindRoot Kind = iota
	KindWhere
	KindSelect
	KindSelectMany
	KindSkip
	KindTake
	KindGroupBy
	KindOfType
	KindDistinct
	KindZip
	KindDefaultIfEmpty
)

var kindNames = [...]string{
	KindRoot:           "Root",
	KindWhere:          "Where",
	KindSelect:         "Select",
	KindSelectMany:     "SelectMany",
	KindSkip:           "Skip",
	KindTake:           "Take",
	KindGroupBy:        "GroupBy",
	KindOfType:         "OfType",
	KindDistinct:       "Distinct",
	KindZip:            "Zip",
	KindDefaultIfEmpty: "DefaultIfEmpty",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Node is a typed view of a query expression.
type Node interface {
	Kind() Kind
	// Expr is the wrapped expression.
	Expr() expr.Expr
	// Source is the node the query reads from, or nil for a Root.
	Source() Node
	// ElementType is the element type of the collection the node produces.
	ElementType() reflect.Type
	// VisitChildren passes the source to v.VisitShape and the remaining arguments to
	// v.VisitExpr, returning the receiver when nothing changed.
	VisitChildren(v Visitor) (Node, error)
	// Reduce returns the plain expression.
	Reduce() expr.Expr
}

// Visitor rewrites the children of a node.
type Visitor interface {
	VisitShape(n Node) (Node, error)
	VisitExpr(e expr.Expr) (expr.Expr, error)
}

// Funcs adapts functions to a Visitor. A nil function leaves its input unchanged.
type Funcs struct {
	Shape func(n Node) (Node, error)
	Expr  func(e expr.Expr) (expr.Expr, error)
}

func (f Funcs) VisitShape(n Node) (Node, error) {
	if f.Shape == nil {
		return n, nil
	}
	return f.Shape(n)
}

func (f Funcs) VisitExpr(e expr.Expr) (expr.Expr, error) {
	if f.Expr == nil {
		return e, nil
	}
	return f.Expr(e)
}

// Nop is a Visitor that changes nothing.
var Nop Visitor = Funcs{}

// Root wraps an expression that is not a query shape, such as an *expr.QueryRoot or
// a collection valued member.
type Root struct {
	e expr.Expr
}

// NewRoot wraps e.
func NewRoot(e expr.Expr) *Root { return &Root{e: e} }

func (r *Root) Kind() Kind                          { return KindRoot }
func (r *Root) Expr() expr.Expr                     { return r.e }
func (r *Root) Source() Node                        { return nil }
func (r *Root) Reduce() expr.Expr                   { return r.e }
func (r *Root) VisitChildren(Visitor) (Node, error) { return r, nil }
func (r *Root) ElementType() reflect.Type           { return elementType(r.e) }
func (r *Root) String() string                      { return r.e.String() }

func elementType(e expr.Expr) reflect.Type {
	elem, _ := expr.ElementType(e.Type())
	return elem
}

// shape is the state shared by every call-backed node.
type shape struct {
	kind     Kind
	call     *expr.Call
	registry *Registry
	self     Node

	once   sync.Once
	source Node
}

func (s *shape) Kind() Kind                { return s.kind }
func (s *shape) Expr() expr.Expr           { return s.call }
func (s *shape) Reduce() expr.Expr         { return s.call }
func (s *shape) ElementType() reflect.Type { return elementType(s.call) }
func (s *shape) String() string            { return s.call.String() }

// Call returns the wrapped call.
func (s *shape) Call() *expr.Call { return s.call }

// Source wraps the first argument on first use.
func (s *shape) Source() Node {
	s.once.Do(func() {
		if s.source == nil {
			s.source = s.registry.wrapOrRoot(s.call.Args[0])
		}
	})
	return s.source
}

func (s *shape) VisitChildren(v Visitor) (Node, error) {
	args := s.call.Args
	next := make([]expr.Expr, len(args))
	changed := false

	source := s.Source()
	visited, err := v.VisitShape(source)
	if err != nil {
		return nil, err
	}
	next[0] = visited.Expr()
	if visited != source {
		changed = true
	}

	for i := 1; i < len(args); i++ {
		if s.kind == KindZip && i == 1 {
			second, err := v.VisitShape(s.registry.wrapOrRoot(args[1]))
			if err != nil {
				return nil, err
			}
			next[i] = second.Expr()
		} else if next[i], err = v.VisitExpr(args[i]); err != nil {
			return nil, err
		}
		if next[i] != args[i] {
			changed = true
		}
	}

	if !changed {
		return s.self, nil
	}
	call, err := expr.NewCall(s.call.Method, next...)
	if err != nil {
		return nil, fmt.Errorf("rebuilding %s: %w", s.kind, err)
	}
	return s.registry.Build(s.kind, call, visited)
}

func (s *shape) lambda(i int) *expr.Lambda {
	if i >= len(s.call.Args) {
		return nil
	}
	l, _ := s.call.Args[i].(*expr.Lambda)
	return l
}

func (s *shape) arg(i int) expr.Expr {
	if i >= len(s.call.Args) {
		return nil
	}
	return s.call.Args[i]
}
