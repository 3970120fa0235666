// Package render writes expression trees as query text. It is the inverse of the
// converter: text produced here parses back to a structurally equal tree.
package render

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/nlstn/go-querytext/expr"
	"github.com/nlstn/go-querytext/internal/metadata"
	"github.com/nlstn/go-querytext/internal/qerrors"
)

// Operator precedence, lowest first.
const (
	precOr = iota + 1
	precAnd
	precNot
	precRelational
	precAdditive
	precMultiplicative
	precPrimary
)

type operator struct {
	word string
	prec int
}

var operators = map[expr.BinaryOp]operator{
	expr.OpOr:             {"or", precOr},
	expr.OpAnd:            {"and", precAnd},
	expr.OpEqual:          {"eq", precRelational},
	expr.OpNotEqual:       {"ne", precRelational},
	expr.OpLessThan:       {"lt", precRelational},
	expr.OpLessOrEqual:    {"le", precRelational},
	expr.OpGreaterThan:    {"gt", precRelational},
	expr.OpGreaterOrEqual: {"ge", precRelational},
	expr.OpAdd:            {"add", precAdditive},
	expr.OpSubtract:       {"sub", precAdditive},
	expr.OpMultiply:       {"mul", precMultiplicative},
	expr.OpDivide:         {"div", precMultiplicative},
	expr.OpModulo:         {"mod", precMultiplicative},
}

// Encoder renders expressions as query text. The zero value is ready to use and
// safe for concurrent use.
type Encoder struct{}

// New returns an Encoder.
func New() *Encoder { return &Encoder{} }

// Render renders e. A single parameter lambda renders its body with the parameter
// as the implicit root; any other expression is rendered without a root.
func (enc *Encoder) Render(e expr.Expr) (string, error) {
	w := &writer{names: make(map[*expr.Parameter]string), taken: make(map[string]bool)}
	if l, ok := e.(*expr.Lambda); ok {
		if len(l.Params) != 1 {
			return "", qerrors.Unsupported("cannot render a lambda with %d parameters", len(l.Params))
		}
		w.setRoot(l.Params[0])
		e = l.Body
	}
	s, _, err := w.render(e)
	return s, err
}

// RenderSelect renders a projection lambda as a select list aliased to the row.
func (enc *Encoder) RenderSelect(l *expr.Lambda) (string, error) {
	s, err := enc.Render(l)
	if err != nil {
		return "", err
	}
	return s + " as this", nil
}

// CanRender reports whether the node itself, ignoring its children, has a query
// text form.
func (enc *Encoder) CanRender(e expr.Expr) bool {
	switch n := e.(type) {
	case *expr.Constant:
		return n.Value == nil || canRenderValue(reflect.ValueOf(n.Value))
	case *expr.Parameter, *expr.Binary, *expr.NewArray:
		return true
	case *expr.Member:
		return metadata.PropertyName(n.Field) != ""
	case *expr.Unary:
		switch n.Op {
		case expr.OpNot:
			return true
		case expr.OpConvert:
			return transparent(n) || typeName(n.Type()) != ""
		}
		return false
	case *expr.TypeIs:
		return typeName(n.Target) != ""
	case *expr.Call:
		_, ok := methods[n.Method]
		return ok && !n.Method.Local
	case *expr.Lambda:
		return len(n.Params) == 1
	case *expr.Index:
		k := n.Object.Type().Kind()
		return k == reflect.Map || k == reflect.Slice || k == reflect.Array
	}
	return false
}

type writer struct {
	root  *expr.Parameter
	names map[*expr.Parameter]string
	// taken holds the lower-cased names a lambda parameter must not shadow.
	taken map[string]bool
}

func (w *writer) setRoot(p *expr.Parameter) {
	w.root = p
	w.taken["this"] = true
	t := p.Type()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	if m, err := metadata.AnalyzeType(t); err == nil {
		for _, prop := range m.Properties {
			w.taken[strings.ToLower(prop.Name)] = true
		}
	}
}

// render returns the text of e and its precedence.
func (w *writer) render(e expr.Expr) (string, int, error) {
	switch e.(type) {
	case *expr.Constant, *expr.Parameter, *expr.Lambda:
	default:
		if expr.IsClosed(e) {
			return w.fold(e)
		}
	}

	switch n := e.(type) {
	case *expr.Constant:
		s, err := literal(n.Value)
		return s, precPrimary, err
	case *expr.Parameter:
		return w.parameter(n)
	case *expr.Member:
		return w.member(n)
	case *expr.Binary:
		return w.binary(n)
	case *expr.Unary:
		return w.unary(n)
	case *expr.TypeIs:
		return w.typeFunc("isof", n.Operand, n.Target)
	case *expr.Call:
		return w.call(n)
	case *expr.Index:
		return w.index(n)
	case *expr.NewArray:
		elems, err := w.list(n.Elems)
		if err != nil {
			return "", 0, err
		}
		return "[" + elems + "]", precPrimary, nil
	case *expr.Lambda:
		return "", 0, qerrors.Unsupported("lambda is only allowed as a method argument")
	case *expr.QueryRoot:
		return "", 0, qerrors.Unsupported("query root %s has no query text form", n.Name)
	}
	return "", 0, qerrors.Unsupported("cannot render %T", e)
}

// operand renders e, parenthesized when its precedence is below atLeast.
func (w *writer) operand(e expr.Expr, atLeast int) (string, error) {
	s, prec, err := w.render(e)
	if err != nil {
		return "", err
	}
	if prec < atLeast {
		return "(" + s + ")", nil
	}
	return s, nil
}

func (w *writer) list(elems []expr.Expr) (string, error) {
	parts := make([]string, len(elems))
	for i, el := range elems {
		s, err := w.operand(el, precOr)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, ","), nil
}

// fold evaluates a subtree that references no parameters and renders its value.
func (w *writer) fold(e expr.Expr) (string, int, error) {
	v, err := expr.Eval(e, nil)
	if err != nil {
		return "", 0, qerrors.UnsupportedWrap(err, "cannot evaluate %s", e)
	}
	s, err := literal(v)
	return s, precPrimary, err
}

func (w *writer) parameter(p *expr.Parameter) (string, int, error) {
	if p == w.root {
		return "this", precPrimary, nil
	}
	if name, ok := w.names[p]; ok {
		return name, precPrimary, nil
	}
	return "", 0, qerrors.Unsupported("parameter %s is not in scope", p.Name)
}

func (w *writer) member(n *expr.Member) (string, int, error) {
	name := metadata.PropertyName(n.Field)
	if name == "" {
		return "", 0, qerrors.Unsupported("field %s is not queryable", n.Field.Name)
	}
	if w.root != nil && n.Object == w.root {
		// Names the grammar reads as literals or operators need the explicit root.
		if reserved[strings.ToLower(name)] || metadata.IsKeyword(name) {
			return "this." + name, precPrimary, nil
		}
		return name, precPrimary, nil
	}
	obj, err := w.operand(n.Object, precPrimary)
	if err != nil {
		return "", 0, err
	}
	return obj + "." + name, precPrimary, nil
}

func (w *writer) binary(n *expr.Binary) (string, int, error) {
	op, ok := operators[n.Op]
	if !ok {
		return "", 0, qerrors.Unsupported("operator %s has no query text form", n.Op)
	}
	leftMin, rightMin := op.prec, op.prec+1
	if op.prec == precRelational {
		leftMin = precRelational + 1
	}
	left, err := w.operand(n.Left, leftMin)
	if err != nil {
		return "", 0, err
	}
	right, err := w.operand(n.Right, rightMin)
	if err != nil {
		return "", 0, err
	}
	return left + " " + op.word + " " + right, op.prec, nil
}

func (w *writer) unary(n *expr.Unary) (string, int, error) {
	switch n.Op {
	case expr.OpNot:
		s, err := w.operand(n.Operand, precNot)
		if err != nil {
			return "", 0, err
		}
		return "not " + s, precNot, nil
	case expr.OpConvert:
		if transparent(n) {
			return w.render(n.Operand)
		}
		return w.typeFunc("cast", n.Operand, n.Type())
	}
	return "", 0, qerrors.Unsupported("negation has no query text form")
}

// transparent reports whether a conversion is implied by the converter's own
// operand promotion and can be left out of the text.
func transparent(n *expr.Unary) bool {
	from := n.Operand.Type()
	return expr.IsWidening(from, n.Type()) || (n.Type().Kind() == reflect.Interface && from.Kind() != reflect.Interface)
}

// typeFunc renders isof and cast. The root operand is implicit.
func (w *writer) typeFunc(fn string, operand expr.Expr, t reflect.Type) (string, int, error) {
	name := typeName(t)
	if name == "" {
		return "", 0, qerrors.Unsupported("type %s has no query text name", t)
	}
	if w.root != nil && operand == w.root {
		return fn + "(" + name + ")", precPrimary, nil
	}
	s, err := w.operand(operand, precOr)
	if err != nil {
		return "", 0, err
	}
	return fn + "(" + s + "," + name + ")", precPrimary, nil
}

func typeName(t reflect.Type) string {
	name := metadata.TypeName(t)
	if !metadata.IsIdentifier(name) {
		return ""
	}
	return name
}

func (w *writer) index(n *expr.Index) (string, int, error) {
	var obj string
	if w.root != nil && n.Object == w.root {
		obj = "this"
	} else {
		var err error
		if obj, err = w.operand(n.Object, precPrimary); err != nil {
			return "", 0, err
		}
	}

	if n.Object.Type().Kind() == reflect.Map {
		if c, ok := n.Key.(*expr.Constant); ok && c.Value != nil && reflect.TypeOf(c.Value).Kind() == reflect.String {
			key := reflect.ValueOf(c.Value).String()
			if metadata.IsIdentifier(key) {
				return obj + "." + key, precPrimary, nil
			}
			return obj + ".get(" + quote(key) + ")", precPrimary, nil
		}
	}

	key, err := w.operand(n.Key, precOr)
	if err != nil {
		return "", 0, err
	}
	return obj + "[" + key + "]", precPrimary, nil
}

// lambda renders a single parameter lambda argument as name:body, renaming the
// parameter when its name would shadow a symbol in scope.
func (w *writer) lambda(e expr.Expr) (string, error) {
	l, ok := e.(*expr.Lambda)
	if !ok || len(l.Params) != 1 {
		return "", qerrors.Unsupported("expected a single parameter lambda argument")
	}
	p := l.Params[0]
	name := w.freshName(p.Name)
	w.names[p] = name
	w.taken[strings.ToLower(name)] = true
	defer func() {
		delete(w.names, p)
		delete(w.taken, strings.ToLower(name))
	}()

	body, err := w.operand(l.Body, precOr)
	if err != nil {
		return "", err
	}
	return name + ":" + body, nil
}

func (w *writer) freshName(base string) string {
	if !metadata.IsIdentifier(base) || reserved[strings.ToLower(base)] {
		base = "x"
	}
	name := base
	for i := 1; w.taken[strings.ToLower(name)]; i++ {
		name = base + strconv.Itoa(i)
	}
	return name
}

// reserved names resolve to literals at root scope.
var reserved = map[string]bool{"true": true, "false": true, "null": true, "this": true}
