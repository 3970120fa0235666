package queryshape

import (
	"reflect"

	"github.com/nlstn/go-querytext/expr"
)

// Where filters its source.
type Where struct{ *shape }

// Predicate returns the filter lambda.
func (n *Where) Predicate() *expr.Lambda { return n.lambda(1) }

// Select projects each element.
type Select struct{ *shape }

func (n *Select) Selector() *expr.Lambda { return n.lambda(1) }

// SelectMany projects each element to a collection and flattens the result.
type SelectMany struct{ *shape }

func (n *SelectMany) Selector() *expr.Lambda { return n.lambda(1) }

// Skip bypasses a number of elements.
type Skip struct{ *shape }

func (n *Skip) Count() expr.Expr { return n.arg(1) }

// Value returns the count when it is a constant.
func (n *Skip) Value() (int, bool) { return constantInt(n.arg(1)) }

// Take limits the number of elements.
type Take struct{ *shape }

func (n *Take) Count() expr.Expr { return n.arg(1) }

// Value returns the count when it is a constant.
func (n *Take) Value() (int, bool) { return constantInt(n.arg(1)) }

// GroupBy groups elements by key.
type GroupBy struct{ *shape }

func (n *GroupBy) KeySelector() *expr.Lambda { return n.lambda(1) }

// ElementSelector is nil unless the group elements are projected.
func (n *GroupBy) ElementSelector() *expr.Lambda { return n.lambda(2) }

// OfType keeps the elements of a given type.
type OfType struct{ *shape }

func (n *OfType) TargetType() reflect.Type {
	c, _ := n.arg(1).(*expr.Constant)
	if c == nil {
		return nil
	}
	t, _ := c.Value.(reflect.Type)
	return t
}

type Distinct struct{ *shape }

// Zip combines two sources pairwise.
type Zip struct{ *shape }

// Second is the collection combined with the source.
func (n *Zip) Second() expr.Expr { return n.arg(1) }

func (n *Zip) ResultSelector() *expr.Lambda { return n.lambda(2) }

// DefaultIfEmpty substitutes a single default element for an empty source.
type DefaultIfEmpty struct{ *shape }

// DefaultValue is nil when the zero value of the element type is used.
func (n *DefaultIfEmpty) DefaultValue() expr.Expr { return n.arg(1) }

func constantInt(e expr.Expr) (int, bool) {
	c, ok := e.(*expr.Constant)
	if !ok || c.Value == nil {
		return 0, false
	}
	rv := reflect.ValueOf(c.Value)
	switch {
	case rv.CanInt():
		return int(rv.Int()), true
	case rv.CanUint():
		return int(rv.Uint()), true
	}
	return 0, false
}
