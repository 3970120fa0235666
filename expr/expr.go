// Package expr provides an inspectable expression tree over typed Go values.
//
// Expressions are immutable once built. Builders validate operand types and return
// errors rather than producing ill-typed trees, so every tree reachable from the
// public API can be evaluated (see Eval) and, when it stays inside the query text
// vocabulary, rendered as query text.
package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// Kind identifies the concrete node type of an Expr.
type Kind int

const (
	KindConstant Kind = iota
	KindParameter
	KindMember
	KindBinary
	KindUnary
	KindTypeIs
	KindCall
	KindLambda
	KindIndex
	KindNewArray
	KindQueryRoot
)

var kindNames = [...]string{
	KindConstant:  "Constant",
	KindParameter: "Parameter",
	KindMember:    "Member",
	KindBinary:    "Binary",
	KindUnary:     "Unary",
	KindTypeIs:    "TypeIs",
	KindCall:      "Call",
	KindLambda:    "Lambda",
	KindIndex:     "Index",
	KindNewArray:  "NewArray",
	KindQueryRoot: "QueryRoot",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Expr is a node of an expression tree.
type Expr interface {
	Kind() Kind
	// Type is the static type of the value the node produces.
	Type() reflect.Type
	String() string
}

// Constant is a literal value.
type Constant struct {
	Value any
	typ   reflect.Type
}

// NewConstant returns a constant typed by the dynamic type of v. A nil v produces
// an untyped null constant whose static type is AnyType.
func NewConstant(v any) *Constant {
	if v == nil {
		return &Constant{typ: AnyType}
	}
	return &Constant{Value: v, typ: reflect.TypeOf(v)}
}

// TypedConstant returns a constant with an explicit static type. v must be nil or
// assignable to t.
func TypedConstant(v any, t reflect.Type) (*Constant, error) {
	if v == nil {
		if !isNillable(t) {
			return nil, fmt.Errorf("null is not a valid %s", t)
		}
		return &Constant{typ: t}, nil
	}
	if !reflect.TypeOf(v).AssignableTo(t) {
		return nil, fmt.Errorf("constant of type %T is not assignable to %s", v, t)
	}
	return &Constant{Value: v, typ: t}, nil
}

// TypeOperand wraps a type as a constant argument, used by OfType.
func TypeOperand(t reflect.Type) *Constant {
	return &Constant{Value: t, typ: typeOfType}
}

func (c *Constant) Kind() Kind         { return KindConstant }
func (c *Constant) Type() reflect.Type { return c.typ }

func (c *Constant) String() string {
	switch v := c.Value.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case reflect.Type:
		return v.String()
	}
	return fmt.Sprintf("%v", c.Value)
}

// Parameter is a lambda parameter. Parameters are compared by identity.
type Parameter struct {
	Name string
	typ  reflect.Type
}

// NewParameter returns a new parameter of type t.
func NewParameter(name string, t reflect.Type) *Parameter {
	return &Parameter{Name: name, typ: t}
}

func (p *Parameter) Kind() Kind         { return KindParameter }
func (p *Parameter) Type() reflect.Type { return p.typ }
func (p *Parameter) String() string     { return p.Name }

// Member reads a struct field. Object may be a struct or a pointer to one; reading
// through a nil pointer yields the field's zero value.
type Member struct {
	Object Expr
	Field  reflect.StructField
}

// Field returns a member access of the exported Go field name on obj.
func Field(obj Expr, name string) (*Member, error) {
	st := indirect(obj.Type())
	if st.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot access field %s on non-struct type %s", name, obj.Type())
	}
	f, ok := st.FieldByName(name)
	if !ok || !f.IsExported() {
		return nil, fmt.Errorf("type %s has no exported field %s", st, name)
	}
	return &Member{Object: obj, Field: f}, nil
}

// FieldOf is Field for a field already looked up by the caller.
func FieldOf(obj Expr, f reflect.StructField) *Member {
	return &Member{Object: obj, Field: f}
}

func (m *Member) Kind() Kind         { return KindMember }
func (m *Member) Type() reflect.Type { return m.Field.Type }
func (m *Member) String() string     { return m.Object.String() + "." + m.Field.Name }

// BinaryOp is the operator of a Binary node.
type BinaryOp int

const (
	OpAnd BinaryOp = iota
	OpOr
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpEqual
	OpNotEqual
	OpLessThan
	OpLessOrEqual
	OpGreaterThan
	OpGreaterOrEqual
)

var binaryOpSymbols = [...]string{
	OpAnd:            "&&",
	OpOr:             "||",
	OpAdd:            "+",
	OpSubtract:       "-",
	OpMultiply:       "*",
	OpDivide:         "/",
	OpModulo:         "%",
	OpEqual:          "==",
	OpNotEqual:       "!=",
	OpLessThan:       "<",
	OpLessOrEqual:    "<=",
	OpGreaterThan:    ">",
	OpGreaterOrEqual: ">=",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpSymbols) {
		return binaryOpSymbols[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// IsComparison reports whether op yields a bool from two operands of the same type.
func (op BinaryOp) IsComparison() bool { return op >= OpEqual }

// IsLogical reports whether op is a short-circuit boolean operator.
func (op BinaryOp) IsLogical() bool { return op == OpAnd || op == OpOr }

// Binary applies a binary operator. Both operands share a static type; see Coerce
// for bringing mismatched operands together.
type Binary struct {
	Op          BinaryOp
	Left, Right Expr
	typ         reflect.Type
}

// NewBinary type-checks and returns left op right.
func NewBinary(op BinaryOp, left, right Expr) (*Binary, error) {
	lt, rt := left.Type(), right.Type()
	switch {
	case op.IsLogical():
		if lt != BoolType || rt != BoolType {
			return nil, fmt.Errorf("operator %s requires bool operands, got %s and %s", op, lt, rt)
		}
		return &Binary{Op: op, Left: left, Right: right, typ: BoolType}, nil
	case op == OpEqual || op == OpNotEqual:
		if lt != rt && !isNullConstant(left) && !isNullConstant(right) {
			return nil, fmt.Errorf("operator %s requires operands of the same type, got %s and %s", op, lt, rt)
		}
		return &Binary{Op: op, Left: left, Right: right, typ: BoolType}, nil
	case op.IsComparison():
		if lt != rt || !IsOrdered(lt) {
			return nil, fmt.Errorf("operator %s requires ordered operands of the same type, got %s and %s", op, lt, rt)
		}
		return &Binary{Op: op, Left: left, Right: right, typ: BoolType}, nil
	}
	if lt != rt || !IsNumeric(lt) {
		return nil, fmt.Errorf("operator %s requires numeric operands of the same type, got %s and %s", op, lt, rt)
	}
	return &Binary{Op: op, Left: left, Right: right, typ: lt}, nil
}

func (b *Binary) Kind() Kind         { return KindBinary }
func (b *Binary) Type() reflect.Type { return b.typ }
func (b *Binary) String() string {
	return "(" + b.Left.String() + " " + b.Op.String() + " " + b.Right.String() + ")"
}

// UnaryOp is the operator of a Unary node.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNegate
	OpConvert
)

// Unary applies a unary operator. For OpConvert the node's type is the target type.
type Unary struct {
	Op      UnaryOp
	Operand Expr
	typ     reflect.Type
}

// Not negates a bool expression.
func Not(operand Expr) (*Unary, error) {
	if operand.Type() != BoolType {
		return nil, fmt.Errorf("not requires a bool operand, got %s", operand.Type())
	}
	return &Unary{Op: OpNot, Operand: operand, typ: BoolType}, nil
}

// Negate returns the arithmetic negation of a numeric expression.
func Negate(operand Expr) (*Unary, error) {
	if !IsNumeric(operand.Type()) || isUnsigned(operand.Type()) {
		return nil, fmt.Errorf("cannot negate %s", operand.Type())
	}
	return &Unary{Op: OpNegate, Operand: operand, typ: operand.Type()}, nil
}

// Convert returns operand converted to t. Numeric conversions, conversions to an
// interface the operand implements, and interface-to-concrete assertions are allowed.
func Convert(operand Expr, t reflect.Type) (*Unary, error) {
	if !CanConvert(operand.Type(), t) {
		return nil, fmt.Errorf("cannot convert %s to %s", operand.Type(), t)
	}
	return &Unary{Op: OpConvert, Operand: operand, typ: t}, nil
}

func (u *Unary) Kind() Kind         { return KindUnary }
func (u *Unary) Type() reflect.Type { return u.typ }
func (u *Unary) String() string {
	switch u.Op {
	case OpNot:
		return "!" + u.Operand.String()
	case OpNegate:
		return "-" + u.Operand.String()
	}
	return u.typ.String() + "(" + u.Operand.String() + ")"
}

// TypeIs tests the dynamic type of its operand.
type TypeIs struct {
	Operand Expr
	Target  reflect.Type
}

// NewTypeIs returns a dynamic type test of operand against target.
func NewTypeIs(operand Expr, target reflect.Type) (*TypeIs, error) {
	src := operand.Type()
	if src.Kind() != reflect.Interface && src != target {
		return nil, fmt.Errorf("type test of non-interface %s against %s is always false", src, target)
	}
	if src.Kind() == reflect.Interface && target.Kind() != reflect.Interface && !target.Implements(src) {
		return nil, fmt.Errorf("%s does not implement %s", target, src)
	}
	return &TypeIs{Operand: operand, Target: target}, nil
}

func (t *TypeIs) Kind() Kind         { return KindTypeIs }
func (t *TypeIs) Type() reflect.Type { return BoolType }
func (t *TypeIs) String() string     { return t.Operand.String() + " is " + t.Target.String() }

// Call invokes a Method. Receivers, when a method has one, are the first argument.
type Call struct {
	Method *Method
	Args   []Expr
	typ    reflect.Type
}

// NewCall type-checks args against m and returns the call.
func NewCall(m *Method, args ...Expr) (*Call, error) {
	t, err := m.check(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}
	return &Call{Method: m, Args: args, typ: t}, nil
}

func (c *Call) Kind() Kind         { return KindCall }
func (c *Call) Type() reflect.Type { return c.typ }
func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Method.Name + "(" + strings.Join(args, ", ") + ")"
}

// Lambda is a function literal.
type Lambda struct {
	Params []*Parameter
	Body   Expr
	typ    reflect.Type
}

// NewLambda returns params => body.
func NewLambda(body Expr, params ...*Parameter) *Lambda {
	in := make([]reflect.Type, len(params))
	for i, p := range params {
		in[i] = p.Type()
	}
	return &Lambda{Params: params, Body: body, typ: reflect.FuncOf(in, []reflect.Type{body.Type()}, false)}
}

func (l *Lambda) Kind() Kind         { return KindLambda }
func (l *Lambda) Type() reflect.Type { return l.typ }

// ReturnType is the static type of the body.
func (l *Lambda) ReturnType() reflect.Type { return l.Body.Type() }

func (l *Lambda) String() string {
	names := make([]string, len(l.Params))
	for i, p := range l.Params {
		names[i] = p.Name
	}
	if len(names) == 1 {
		return names[0] + " => " + l.Body.String()
	}
	return "(" + strings.Join(names, ", ") + ") => " + l.Body.String()
}

// Index reads a slice element or a map entry. A missing map key yields the zero value.
type Index struct {
	Object Expr
	Key    Expr
	typ    reflect.Type
}

// NewIndex returns obj[key].
func NewIndex(obj, key Expr) (*Index, error) {
	t := obj.Type()
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		if !isInteger(key.Type()) {
			return nil, fmt.Errorf("index of %s must be an integer, got %s", t, key.Type())
		}
	case reflect.Map:
		if key.Type() != t.Key() {
			return nil, fmt.Errorf("key of %s must be %s, got %s", t, t.Key(), key.Type())
		}
	default:
		return nil, fmt.Errorf("type %s cannot be indexed", t)
	}
	return &Index{Object: obj, Key: key, typ: t.Elem()}, nil
}

func (i *Index) Kind() Kind         { return KindIndex }
func (i *Index) Type() reflect.Type { return i.typ }
func (i *Index) String() string     { return i.Object.String() + "[" + i.Key.String() + "]" }

// NewArray builds a slice from its elements.
type NewArray struct {
	Elems []Expr
	typ   reflect.Type
}

// NewArrayOf returns a slice of elem built from elems. Each element must be
// assignable to elem.
func NewArrayOf(elem reflect.Type, elems ...Expr) (*NewArray, error) {
	for i, e := range elems {
		if !e.Type().AssignableTo(elem) && !isNullConstant(e) {
			return nil, fmt.Errorf("array element %d of type %s is not assignable to %s", i, e.Type(), elem)
		}
	}
	return &NewArray{Elems: elems, typ: reflect.SliceOf(elem)}, nil
}

func (a *NewArray) Kind() Kind         { return KindNewArray }
func (a *NewArray) Type() reflect.Type { return a.typ }
func (a *NewArray) String() string {
	parts := make([]string, len(a.Elems))
	for i, e := range a.Elems {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// QueryRoot names a remote collection. It evaluates to the rows bound under its name
// in the Env.
type QueryRoot struct {
	Name string
	typ  reflect.Type
}

// NewQueryRoot returns a root collection of elements of type elem.
func NewQueryRoot(name string, elem reflect.Type) *QueryRoot {
	return &QueryRoot{Name: name, typ: reflect.SliceOf(elem)}
}

func (q *QueryRoot) Kind() Kind         { return KindQueryRoot }
func (q *QueryRoot) Type() reflect.Type { return q.typ }
func (q *QueryRoot) String() string     { return q.Name }

func isNullConstant(e Expr) bool {
	c, ok := e.(*Constant)
	return ok && c.Value == nil
}

// IsNull reports whether e is a null constant.
func IsNull(e Expr) bool { return isNullConstant(e) }
