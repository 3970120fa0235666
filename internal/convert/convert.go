// Package convert turns AST nodes into expression trees, resolving symbols
// against a root type through a Resolver.
package convert

import (
	"errors"
	"math"
	"reflect"
	"strings"

	"github.com/nlstn/go-querytext/expr"
	"github.com/nlstn/go-querytext/internal/ast"
	"github.com/nlstn/go-querytext/internal/qerrors"
)

// Resolver maps names in query text to expressions and types. It is the seam to
// whatever owns the model metadata.
type Resolver interface {
	// ResolveProperty returns the expression reading name from the value of context.
	ResolveProperty(context expr.Expr, name string) (expr.Expr, error)
	// ResolveType returns the type named in isof and cast.
	ResolveType(name string) (reflect.Type, error)
}

// RootName is the name of the root parameter of parsed lambdas.
const RootName = "this"

var binaryOps = map[ast.NodeType]expr.BinaryOp{
	ast.And:            expr.OpAnd,
	ast.Or:             expr.OpOr,
	ast.Add:            expr.OpAdd,
	ast.Subtract:       expr.OpSubtract,
	ast.Multiply:       expr.OpMultiply,
	ast.Divide:         expr.OpDivide,
	ast.Modulo:         expr.OpModulo,
	ast.Equal:          expr.OpEqual,
	ast.NotEqual:       expr.OpNotEqual,
	ast.LessThan:       expr.OpLessThan,
	ast.LessOrEqual:    expr.OpLessOrEqual,
	ast.GreaterThan:    expr.OpGreaterThan,
	ast.GreaterOrEqual: expr.OpGreaterOrEqual,
}

type converter struct {
	resolver Resolver
	root     *expr.Parameter
	scope    []*expr.Parameter
}

// Parse converts node to an expression over root.
func Parse(node ast.Node, root *expr.Parameter, resolver Resolver) (expr.Expr, error) {
	c := &converter{resolver: resolver, root: root}
	return c.parse(node, nil)
}

// Filter converts node into a predicate over rootType.
func Filter(node ast.Node, rootType reflect.Type, resolver Resolver) (*expr.Lambda, error) {
	root := expr.NewParameter(RootName, rootType)
	body, err := Parse(node, root, resolver)
	if err != nil {
		return nil, err
	}
	if body.Type() != expr.BoolType {
		return nil, qerrors.Unsupported("filter must be a bool expression, got %s", body.Type())
	}
	return expr.NewLambda(body, root), nil
}

// Select converts the items of a select list into a projection over rootType. A
// single item, unaliased or aliased 'this', is the projection itself; several items
// form a tuple in item order.
func Select(items []ast.Node, rootType reflect.Type, resolver Resolver) (*expr.Lambda, error) {
	root := expr.NewParameter(RootName, rootType)
	c := &converter{resolver: resolver, root: root}

	elems := make([]expr.Expr, len(items))
	for i, item := range items {
		if b, ok := item.(*ast.BinaryNode); ok && b.Op == ast.As {
			alias, ok := b.Right.(*ast.SymbolNode)
			if !ok || alias.HasParens || !strings.EqualFold(alias.Name, RootName) {
				return nil, qerrors.Unsupported("select items can only be aliased as %s", RootName)
			}
			item = b.Left
		}
		e, err := c.parse(item, nil)
		if err != nil {
			return nil, err
		}
		elems[i] = e
	}

	if len(elems) == 1 {
		return expr.NewLambda(elems[0], root), nil
	}
	tuple, err := expr.NewArrayOf(expr.AnyType, elems...)
	if err != nil {
		return nil, qerrors.UnsupportedWrap(err, "invalid select list")
	}
	return expr.NewLambda(tuple, root), nil
}

// parse converts node. context is the value a dotted right hand side applies to,
// or nil at root scope.
func (c *converter) parse(node ast.Node, context expr.Expr) (expr.Expr, error) {
	switch n := node.(type) {
	case *ast.IntLiteralNode:
		if n.Value >= math.MinInt32 && n.Value <= math.MaxInt32 {
			return expr.NewConstant(int32(n.Value)), nil
		}
		return expr.NewConstant(n.Value), nil
	case *ast.NumberLiteralNode:
		return expr.NewConstant(n.Value), nil
	case *ast.StringLiteralNode:
		return expr.NewConstant(n.Value), nil
	case *ast.GuidLiteralNode:
		return expr.NewConstant(n.Value), nil
	case *ast.DateTimeLiteralNode:
		return expr.NewConstant(n.Value), nil
	case *ast.ArrayNode:
		return c.parseArray(n)
	case *ast.NotNode:
		operand, err := c.parse(n.Operand, nil)
		if err != nil {
			return nil, err
		}
		u, err := expr.Not(operand)
		if err != nil {
			return nil, qerrors.UnsupportedWrap(err, "invalid operand for not")
		}
		return u, nil
	case *ast.BinaryNode:
		return c.parseBinary(n, context)
	case *ast.SymbolNode:
		if n.HasParens {
			return c.parseCall(n, context)
		}
		return c.parseSymbol(n, context)
	case *ast.IndexerNode:
		return c.parseIndexer(n, context)
	case *ast.LambdaNode:
		return nil, qerrors.Unsupported("lambda %s is only allowed as a method argument", n.Param)
	case *ast.UnhandledNode:
		return nil, qerrors.Unresolved("unable to resolve %s '%s'", n.Kind, n.Text)
	}
	return nil, qerrors.Unsupported("node type %T is not implemented", node)
}

func (c *converter) parseBinary(n *ast.BinaryNode, context expr.Expr) (expr.Expr, error) {
	switch n.Op {
	case ast.Dot:
		left, err := c.parse(n.Left, context)
		if err != nil {
			return nil, err
		}
		return c.parse(n.Right, left)
	case ast.As:
		return nil, qerrors.Unsupported("alias is only allowed on a select item")
	}

	op, ok := binaryOps[n.Op]
	if !ok {
		return nil, qerrors.Unsupported("operator %s is not implemented", n.Op)
	}

	left, err := c.parse(n.Left, nil)
	if err != nil {
		return nil, err
	}
	right, err := c.parse(n.Right, nil)
	if err != nil {
		return nil, err
	}
	return combine(op, left, right)
}

// combine coerces the operands to a common type and applies op.
func combine(op expr.BinaryOp, left, right expr.Expr) (expr.Expr, error) {
	left, right = constantToNamed(left, right.Type()), constantToNamed(right, left.Type())
	if !op.IsLogical() && left.Type() != right.Type() {
		var err error
		if left, right, err = expr.Coerce(left, right); err != nil {
			return nil, qerrors.UnsupportedWrap(err, "operator %s cannot be applied", op)
		}
	}
	b, err := expr.NewBinary(op, left, right)
	if err != nil {
		return nil, qerrors.UnsupportedWrap(err, "operator %s cannot be applied", op)
	}
	return b, nil
}

// constantToNamed converts a literal to the named type t, so that enum-like types
// such as `type Status string` compare with literals.
func constantToNamed(e expr.Expr, t reflect.Type) expr.Expr {
	k, ok := e.(*expr.Constant)
	if !ok || k.Value == nil || t.PkgPath() == "" || k.Type() == t {
		return e
	}
	from := reflect.TypeOf(k.Value)
	if !sameFamily(from.Kind(), t.Kind()) || !from.ConvertibleTo(t) {
		return e
	}
	converted, err := expr.TypedConstant(reflect.ValueOf(k.Value).Convert(t).Interface(), t)
	if err != nil {
		return e
	}
	return converted
}

func sameFamily(from, to reflect.Kind) bool {
	family := func(k reflect.Kind) int {
		switch {
		case k == reflect.String:
			return 1
		case k >= reflect.Int && k <= reflect.Uint64:
			return 2
		case k == reflect.Float32 || k == reflect.Float64:
			return 3
		}
		return 0
	}
	f, t := family(from), family(to)
	return f != 0 && (f == t || (f == 2 && t == 3))
}

func (c *converter) parseSymbol(n *ast.SymbolNode, context expr.Expr) (expr.Expr, error) {
	if context == nil {
		switch strings.ToLower(n.Name) {
		case "true":
			return expr.NewConstant(true), nil
		case "false":
			return expr.NewConstant(false), nil
		case "null":
			return expr.NewConstant(nil), nil
		case RootName:
			return c.root, nil
		}
		for i := len(c.scope) - 1; i >= 0; i-- {
			if c.scope[i].Name == n.Name {
				return c.scope[i], nil
			}
		}
		context = c.root
	}
	return c.resolve(context, n.Name)
}

func (c *converter) resolve(context expr.Expr, name string) (expr.Expr, error) {
	e, err := c.resolver.ResolveProperty(context, name)
	if err != nil {
		if isQueryError(err) {
			return nil, err
		}
		return nil, qerrors.UnresolvedWrap(err, "unable to resolve property %s", name)
	}
	return e, nil
}

func (c *converter) parseIndexer(n *ast.IndexerNode, context expr.Expr) (expr.Expr, error) {
	target, err := c.parse(n.Target, context)
	if err != nil {
		return nil, err
	}
	if len(n.Args) != 1 {
		return nil, qerrors.Unsupported("indexer takes exactly one argument, got %d", len(n.Args))
	}
	key, err := c.parse(n.Args[0], nil)
	if err != nil {
		return nil, err
	}
	return index(target, key)
}

func index(target, key expr.Expr) (expr.Expr, error) {
	if target.Type().Kind() == reflect.Map {
		key = constantToNamed(key, target.Type().Key())
	}
	idx, err := expr.NewIndex(target, key)
	if err != nil {
		return nil, qerrors.UnsupportedWrap(err, "invalid indexer")
	}
	return idx, nil
}

func (c *converter) parseArray(n *ast.ArrayNode) (expr.Expr, error) {
	elems := make([]expr.Expr, len(n.Elems))
	var elemType reflect.Type
	for i, el := range n.Elems {
		e, err := c.parse(el, nil)
		if err != nil {
			return nil, err
		}
		elems[i] = e
		switch {
		case elemType == nil:
			elemType = e.Type()
		case elemType != e.Type():
			elemType = expr.AnyType
		}
	}
	if elemType == nil {
		elemType = expr.AnyType
	}
	arr, err := expr.NewArrayOf(elemType, elems...)
	if err != nil {
		return nil, qerrors.UnsupportedWrap(err, "invalid array")
	}
	return arr, nil
}

// parseLambda converts a lambda argument whose parameter ranges over elem.
func (c *converter) parseLambda(node ast.Node, elem reflect.Type) (*expr.Lambda, error) {
	l, ok := node.(*ast.LambdaNode)
	if !ok {
		return nil, qerrors.Unsupported("expected a lambda argument")
	}
	p := expr.NewParameter(l.Param, elem)
	c.scope = append(c.scope, p)
	defer func() { c.scope = c.scope[:len(c.scope)-1] }()

	body, err := c.parse(l.Body, nil)
	if err != nil {
		return nil, err
	}
	return expr.NewLambda(body, p), nil
}

// typeOperand resolves an isof or cast type argument.
func (c *converter) typeOperand(node ast.Node) (reflect.Type, error) {
	var name string
	switch n := node.(type) {
	case *ast.SymbolNode:
		name = n.Name
	case *ast.StringLiteralNode:
		name = n.Value
	default:
		return nil, qerrors.Unsupported("expected a type name")
	}
	t, err := c.resolver.ResolveType(name)
	if err != nil {
		if isQueryError(err) {
			return nil, err
		}
		return nil, qerrors.UnresolvedWrap(err, "unable to resolve type %s", name)
	}
	return t, nil
}

func isQueryError(err error) bool {
	var qe *qerrors.QueryError
	return errors.As(err, &qe)
}
