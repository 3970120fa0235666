package convert

import (
	"reflect"
	"strings"

	"github.com/nlstn/go-querytext/expr"
	"github.com/nlstn/go-querytext/internal/ast"
	"github.com/nlstn/go-querytext/internal/metadata"
	"github.com/nlstn/go-querytext/internal/qerrors"
)

// methodFunc builds the call for a method written in query text. src is the dotted
// receiver, or nil for a root level function.
type methodFunc func(c *converter, src expr.Expr, args []ast.Node) (expr.Expr, error)

// The method tables refer back to the converter through the builders they hold,
// so they are filled in init rather than by initializer.
var (
	// rootFunctions are the functions callable without a receiver.
	rootFunctions map[string]methodFunc
	// collectionMethods are the methods callable on a slice receiver.
	collectionMethods map[string]methodFunc
	// stringMethods are the methods callable on a string receiver.
	stringMethods map[string]methodFunc
)

func init() {
	rootFunctions = map[string]methodFunc{
		"isof":        isOf,
		"cast":        cast,
		"substringof": swapped(expr.MethodContains),
		"contains":    stringFunc(expr.MethodContains),
		"startswith":  stringFunc(expr.MethodStartsWith),
		"endswith":    stringFunc(expr.MethodEndsWith),
		"tolower":     stringFunc(expr.MethodToLower),
		"toupper":     stringFunc(expr.MethodToUpper),
		"length":      stringFunc(expr.MethodLength),
		"trim":        stringFunc(expr.MethodTrim),
		"concat":      stringFunc(expr.MethodConcat),
		"indexof":     stringFunc(expr.MethodIndexOf),
		"count":       countOf,
	}

	collectionMethods = map[string]methodFunc{
		"any":          optionalLambda(expr.MethodAny),
		"all":          requiredLambda(expr.MethodAll),
		"count":        optionalLambda(expr.MethodCount),
		"where":        requiredLambda(expr.MethodWhere),
		"select":       requiredLambda(expr.MethodSelect),
		"sum":          optionalLambda(expr.MethodSum),
		"min":          optionalLambda(expr.MethodMin),
		"max":          optionalLambda(expr.MethodMax),
		"average":      optionalLambda(expr.MethodAverage),
		"first":        optionalLambda(expr.MethodFirst),
		"firstdefault": optionalLambda(expr.MethodFirstOrDefault),
		"take":         countArgument(expr.MethodTake),
		"skip":         countArgument(expr.MethodSkip),
		"contains":     sequenceContains,
	}

	stringMethods = map[string]methodFunc{
		"contains":   stringFunc(expr.MethodContains),
		"startswith": stringFunc(expr.MethodStartsWith),
		"endswith":   stringFunc(expr.MethodEndsWith),
		"tolower":    stringFunc(expr.MethodToLower),
		"toupper":    stringFunc(expr.MethodToUpper),
		"length":     stringFunc(expr.MethodLength),
		"trim":       stringFunc(expr.MethodTrim),
		"concat":     stringFunc(expr.MethodConcat),
		"indexof":    stringFunc(expr.MethodIndexOf),
	}
}

// parseCall converts a call. Root level calls try the built-in functions; dotted
// calls dispatch on the receiver type.
func (c *converter) parseCall(n *ast.SymbolNode, context expr.Expr) (expr.Expr, error) {
	name := strings.ToLower(n.Name)

	if context == nil {
		if fn, ok := rootFunctions[name]; ok {
			return fn(c, nil, n.Args)
		}
		return nil, qerrors.Unresolved("unable to resolve property %s", n.Name)
	}

	t := context.Type()
	var table map[string]methodFunc
	switch {
	case t.Kind() == reflect.Slice || t.Kind() == reflect.Array:
		table = collectionMethods
	case t == expr.StringType:
		table = stringMethods
	case t.Kind() == reflect.Map && name == "get":
		return mapGet(c, context, n.Args)
	}
	if fn, ok := table[name]; ok {
		return fn(c, context, n.Args)
	}
	return nil, qerrors.Unresolved("unable to resolve method %s on %s", n.Name, t)
}

func (c *converter) parseArgs(args []ast.Node) ([]expr.Expr, error) {
	out := make([]expr.Expr, len(args))
	for i, a := range args {
		e, err := c.parse(a, nil)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func call(m *expr.Method, args ...expr.Expr) (expr.Expr, error) {
	e, err := expr.NewCall(m, args...)
	if err != nil {
		return nil, qerrors.UnsupportedWrap(err, "invalid call to %s", strings.ToLower(m.Name))
	}
	return e, nil
}

// stringFunc handles both forms of a string function: f(s, ...) and s.f(...).
func stringFunc(m *expr.Method) methodFunc {
	return func(c *converter, src expr.Expr, args []ast.Node) (expr.Expr, error) {
		parsed, err := c.parseArgs(args)
		if err != nil {
			return nil, err
		}
		if src != nil {
			parsed = append([]expr.Expr{src}, parsed...)
		}
		return call(m, parsed...)
	}
}

// swapped handles substringof(needle, haystack).
func swapped(m *expr.Method) methodFunc {
	return func(c *converter, _ expr.Expr, args []ast.Node) (expr.Expr, error) {
		if len(args) != 2 {
			return nil, qerrors.Unsupported("substringof takes 2 arguments, got %d", len(args))
		}
		parsed, err := c.parseArgs(args)
		if err != nil {
			return nil, err
		}
		return call(m, parsed[1], parsed[0])
	}
}

// isOf handles isof(Type) against the root and isof(expr, Type).
func isOf(c *converter, _ expr.Expr, args []ast.Node) (expr.Expr, error) {
	operand, target, err := c.typeArgs("isof", args)
	if err != nil {
		return nil, err
	}
	e, err := expr.NewTypeIs(operand, target)
	if err != nil {
		return nil, qerrors.UnsupportedWrap(err, "invalid isof")
	}
	return e, nil
}

// cast handles cast(Type) of the root and cast(expr, Type).
func cast(c *converter, _ expr.Expr, args []ast.Node) (expr.Expr, error) {
	operand, target, err := c.typeArgs("cast", args)
	if err != nil {
		return nil, err
	}
	e, err := expr.Convert(operand, target)
	if err != nil {
		return nil, qerrors.UnsupportedWrap(err, "invalid cast")
	}
	return e, nil
}

func (c *converter) typeArgs(name string, args []ast.Node) (expr.Expr, reflect.Type, error) {
	var operand expr.Expr = c.root
	switch len(args) {
	case 1:
	case 2:
		var err error
		if operand, err = c.parse(args[0], nil); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, qerrors.Unsupported("%s takes 1 or 2 arguments, got %d", name, len(args))
	}
	target, err := c.typeOperand(args[len(args)-1])
	if err != nil {
		return nil, nil, err
	}
	return operand, target, nil
}

// countOf handles count(src).
func countOf(c *converter, _ expr.Expr, args []ast.Node) (expr.Expr, error) {
	if len(args) != 1 {
		return nil, qerrors.Unsupported("count takes 1 argument, got %d", len(args))
	}
	src, err := c.parse(args[0], nil)
	if err != nil {
		return nil, err
	}
	return call(expr.MethodCount, src)
}

func elementOf(src expr.Expr) reflect.Type {
	elem, _ := expr.ElementType(src.Type())
	return elem
}

func optionalLambda(m *expr.Method) methodFunc {
	return func(c *converter, src expr.Expr, args []ast.Node) (expr.Expr, error) {
		switch len(args) {
		case 0:
			return call(m, src)
		case 1:
			l, err := c.parseLambda(args[0], elementOf(src))
			if err != nil {
				return nil, err
			}
			return call(m, src, l)
		}
		return nil, qerrors.Unsupported("%s takes at most 1 argument, got %d", strings.ToLower(m.Name), len(args))
	}
}

func requiredLambda(m *expr.Method) methodFunc {
	return func(c *converter, src expr.Expr, args []ast.Node) (expr.Expr, error) {
		if len(args) != 1 {
			return nil, qerrors.Unsupported("%s takes 1 argument, got %d", strings.ToLower(m.Name), len(args))
		}
		l, err := c.parseLambda(args[0], elementOf(src))
		if err != nil {
			return nil, err
		}
		return call(m, src, l)
	}
}

func countArgument(m *expr.Method) methodFunc {
	return func(c *converter, src expr.Expr, args []ast.Node) (expr.Expr, error) {
		if len(args) != 1 {
			return nil, qerrors.Unsupported("%s takes 1 argument, got %d", strings.ToLower(m.Name), len(args))
		}
		n, err := c.parse(args[0], nil)
		if err != nil {
			return nil, err
		}
		return call(m, src, n)
	}
}

// sequenceContains handles src.contains(value), converting literals to the element type.
func sequenceContains(c *converter, src expr.Expr, args []ast.Node) (expr.Expr, error) {
	if len(args) != 1 {
		return nil, qerrors.Unsupported("contains takes 1 argument, got %d", len(args))
	}
	v, err := c.parse(args[0], nil)
	if err != nil {
		return nil, err
	}
	elem := elementOf(src)
	v = constantToNamed(v, elem)
	if v.Type() != elem {
		if _, coerced, err := expr.Coerce(typedZero(elem), v); err == nil && coerced.Type() == elem {
			v = coerced
		}
	}
	return call(expr.MethodSequenceContains, src, v)
}

func typedZero(t reflect.Type) expr.Expr {
	c, err := expr.TypedConstant(reflect.Zero(t).Interface(), t)
	if err != nil {
		return expr.NewConstant(nil)
	}
	return c
}

// mapGet handles m.get('key') for keys that are not valid identifiers.
func mapGet(c *converter, src expr.Expr, args []ast.Node) (expr.Expr, error) {
	if len(args) != 1 {
		return nil, qerrors.Unsupported("get takes 1 argument, got %d", len(args))
	}
	if key, ok := args[0].(*ast.StringLiteralNode); ok {
		return metadata.MapLookup(src, key.Value)
	}
	key, err := c.parse(args[0], nil)
	if err != nil {
		return nil, err
	}
	return index(src, key)
}
