package expr

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var errDivideByZero = errors.New("division by zero")

// Env binds parameters and query roots to values during evaluation.
type Env struct {
	parent *Env
	vars   map[*Parameter]any
	roots  map[string]any
}

// NewEnv returns an empty environment.
func NewEnv() *Env { return &Env{} }

// WithRoot binds rows to the query root name and returns the environment.
func (e *Env) WithRoot(name string, rows any) *Env {
	if e.roots == nil {
		e.roots = make(map[string]any)
	}
	e.roots[name] = rows
	return e
}

// Bind returns a child environment with params bound to args.
func (e *Env) Bind(params []*Parameter, args []any) *Env {
	child := &Env{parent: e, vars: make(map[*Parameter]any, len(params))}
	for i, p := range params {
		child.vars[p] = args[i]
	}
	return child
}

func (e *Env) lookup(p *Parameter) (any, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[p]; ok {
			return v, true
		}
	}
	return nil, false
}

func (e *Env) root(name string) (any, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.roots[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Closure is an evaluated lambda together with the environment it captured.
type Closure struct {
	Lambda *Lambda
	env    *Env
}

// Call applies the closure.
func (c *Closure) Call(args ...any) (any, error) {
	if len(args) != len(c.Lambda.Params) {
		return nil, fmt.Errorf("lambda takes %d arguments, got %d", len(c.Lambda.Params), len(args))
	}
	return Eval(c.Lambda.Body, c.env.Bind(c.Lambda.Params, args))
}

// Compile returns a function evaluating the lambda in an empty environment.
func (l *Lambda) Compile() func(args ...any) (any, error) {
	c := &Closure{Lambda: l, env: NewEnv()}
	return c.Call
}

// Eval interprets e in env. A nil env is treated as empty.
func Eval(e Expr, env *Env) (any, error) {
	if env == nil {
		env = NewEnv()
	}
	switch n := e.(type) {
	case *Constant:
		return n.Value, nil
	case *Parameter:
		v, ok := env.lookup(n)
		if !ok {
			return nil, fmt.Errorf("parameter %s is not bound", n.Name)
		}
		return v, nil
	case *QueryRoot:
		v, ok := env.root(n.Name)
		if !ok {
			return nil, fmt.Errorf("query root %s is not bound", n.Name)
		}
		return v, nil
	case *Member:
		obj, err := Eval(n.Object, env)
		if err != nil {
			return nil, err
		}
		return readField(obj, n.Field), nil
	case *Binary:
		return evalBinary(n, env)
	case *Unary:
		return evalUnary(n, env)
	case *TypeIs:
		v, err := Eval(n.Operand, env)
		if err != nil || v == nil {
			return false, err
		}
		return reflect.TypeOf(v).AssignableTo(n.Target), nil
	case *Call:
		args := make([]any, len(n.Args))
		for i, a := range n.Args {
			v, err := Eval(a, env)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return n.Method.invoke(args)
	case *Lambda:
		return &Closure{Lambda: n, env: env}, nil
	case *Index:
		return evalIndex(n, env)
	case *NewArray:
		out := reflect.MakeSlice(n.typ, 0, len(n.Elems))
		for _, el := range n.Elems {
			v, err := Eval(el, env)
			if err != nil {
				return nil, err
			}
			out = appendValue(out, v, n.typ.Elem())
		}
		return out.Interface(), nil
	}
	return nil, fmt.Errorf("cannot evaluate %T", e)
}

func readField(obj any, f reflect.StructField) any {
	rv := reflect.ValueOf(obj)
	for rv.IsValid() && (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return reflect.Zero(f.Type).Interface()
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return reflect.Zero(f.Type).Interface()
	}
	return rv.FieldByIndex(f.Index).Interface()
}

func evalIndex(n *Index, env *Env) (any, error) {
	obj, err := Eval(n.Object, env)
	if err != nil {
		return nil, err
	}
	key, err := Eval(n.Key, env)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(obj)
	if !rv.IsValid() {
		return reflect.Zero(n.typ).Interface(), nil
	}
	if rv.Kind() == reflect.Map {
		v := rv.MapIndex(reflect.ValueOf(key))
		if !v.IsValid() {
			return reflect.Zero(n.typ).Interface(), nil
		}
		return v.Interface(), nil
	}
	i := toInt(key)
	if i < 0 || i >= rv.Len() {
		return nil, fmt.Errorf("index %d out of range [0:%d]", i, rv.Len())
	}
	return rv.Index(i).Interface(), nil
}

func evalUnary(n *Unary, env *Env) (any, error) {
	v, err := Eval(n.Operand, env)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case OpNot:
		b, _ := v.(bool)
		return !b, nil
	case OpNegate:
		return arithmetic(OpSubtract, reflect.Zero(n.typ).Interface(), v, n.typ)
	}
	if v == nil {
		return reflect.Zero(n.typ).Interface(), nil
	}
	return convertValue(v, n.typ)
}

func evalBinary(n *Binary, env *Env) (any, error) {
	left, err := Eval(n.Left, env)
	if err != nil {
		return nil, err
	}
	if n.Op.IsLogical() {
		l, _ := left.(bool)
		if (n.Op == OpAnd && !l) || (n.Op == OpOr && l) {
			return l, nil
		}
		return Eval(n.Right, env)
	}
	right, err := Eval(n.Right, env)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case OpEqual:
		return valuesEqual(left, right), nil
	case OpNotEqual:
		return !valuesEqual(left, right), nil
	case OpLessThan, OpLessOrEqual, OpGreaterThan, OpGreaterOrEqual:
		c, err := compareValues(left, right)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case OpLessThan:
			return c < 0, nil
		case OpLessOrEqual:
			return c <= 0, nil
		case OpGreaterThan:
			return c > 0, nil
		}
		return c >= 0, nil
	}
	return arithmetic(n.Op, left, right, n.typ)
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func valuesEqual(a, b any) bool {
	if isNilValue(a) || isNilValue(b) {
		return isNilValue(a) && isNilValue(b)
	}
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case decimal.Decimal:
		y, ok := b.(decimal.Decimal)
		return ok && x.Equal(y)
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(a) == reflect.TypeOf(b) {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b any) (int, error) {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	case decimal.Decimal:
		if y, ok := b.(decimal.Decimal); ok {
			return x.Cmp(y), nil
		}
	}
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if !av.IsValid() || !bv.IsValid() || av.Type() != bv.Type() {
		return 0, fmt.Errorf("cannot compare %T with %T", a, b)
	}
	switch {
	case av.CanInt():
		return cmp3(av.Int() < bv.Int(), av.Int() > bv.Int()), nil
	case av.CanUint():
		return cmp3(av.Uint() < bv.Uint(), av.Uint() > bv.Uint()), nil
	case av.CanFloat():
		return cmp3(av.Float() < bv.Float(), av.Float() > bv.Float()), nil
	}
	return 0, fmt.Errorf("values of type %T are not ordered", a)
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// arithmetic applies an arithmetic operator to two values of type t.
func arithmetic(op BinaryOp, a, b any, t reflect.Type) (any, error) {
	if t == DecimalType {
		x, _ := a.(decimal.Decimal)
		y, _ := b.(decimal.Decimal)
		switch op {
		case OpAdd:
			return x.Add(y), nil
		case OpSubtract:
			return x.Sub(y), nil
		case OpMultiply:
			return x.Mul(y), nil
		case OpDivide, OpModulo:
			if y.IsZero() {
				return nil, errDivideByZero
			}
			if op == OpDivide {
				return x.Div(y), nil
			}
			return x.Mod(y), nil
		}
		return nil, fmt.Errorf("operator %s is not arithmetic", op)
	}
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if !av.IsValid() || !bv.IsValid() {
		return nil, fmt.Errorf("operator %s applied to null", op)
	}
	out := reflect.New(t).Elem()
	switch {
	case out.CanInt():
		x, y := av.Int(), bv.Int()
		if (op == OpDivide || op == OpModulo) && y == 0 {
			return nil, errDivideByZero
		}
		out.SetInt(intOp(op, x, y))
	case out.CanUint():
		x, y := av.Uint(), bv.Uint()
		if (op == OpDivide || op == OpModulo) && y == 0 {
			return nil, errDivideByZero
		}
		out.SetUint(uintOp(op, x, y))
	case out.CanFloat():
		x, y := av.Float(), bv.Float()
		switch op {
		case OpAdd:
			out.SetFloat(x + y)
		case OpSubtract:
			out.SetFloat(x - y)
		case OpMultiply:
			out.SetFloat(x * y)
		case OpDivide:
			out.SetFloat(x / y)
		default:
			out.SetFloat(math.Mod(x, y))
		}
	default:
		return nil, fmt.Errorf("operator %s is not defined on %s", op, t)
	}
	return out.Interface(), nil
}

func intOp(op BinaryOp, x, y int64) int64 {
	switch op {
	case OpAdd:
		return x + y
	case OpSubtract:
		return x - y
	case OpMultiply:
		return x * y
	case OpDivide:
		return x / y
	}
	return x % y
}

func uintOp(op BinaryOp, x, y uint64) uint64 {
	switch op {
	case OpAdd:
		return x + y
	case OpSubtract:
		return x - y
	case OpMultiply:
		return x * y
	case OpDivide:
		return x / y
	}
	return x % y
}
