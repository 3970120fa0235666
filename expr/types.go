package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Frequently used static types.
var (
	AnyType     = reflect.TypeOf((*any)(nil)).Elem()
	BoolType    = reflect.TypeOf(false)
	StringType  = reflect.TypeOf("")
	IntType     = reflect.TypeOf(0)
	Int32Type   = reflect.TypeOf(int32(0))
	Int64Type   = reflect.TypeOf(int64(0))
	Float32Type = reflect.TypeOf(float32(0))
	Float64Type = reflect.TypeOf(float64(0))
	DecimalType = reflect.TypeOf(decimal.Decimal{})
	TimeType    = reflect.TypeOf(time.Time{})
	UUIDType    = reflect.TypeOf(uuid.UUID{})
	TupleType   = reflect.TypeOf([]any(nil))
	GroupType   = reflect.TypeOf(Group{})

	typeOfType = reflect.TypeOf((*reflect.Type)(nil)).Elem()
)

// Group is an element produced by GroupBy. Items holds a slice of the grouped
// element type.
type Group struct {
	Key   any
	Items any
}

// numericRank orders numeric types for promotion. Higher wins.
var numericRank = map[reflect.Kind]int{
	reflect.Int8:    1,
	reflect.Uint8:   2,
	reflect.Int16:   3,
	reflect.Uint16:  4,
	reflect.Int32:   5,
	reflect.Uint32:  6,
	reflect.Int:     7,
	reflect.Int64:   8,
	reflect.Uint:    9,
	reflect.Uint64:  9,
	reflect.Float32: 10,
	reflect.Float64: 11,
}

const decimalRank = 12

func rank(t reflect.Type) int {
	if t == DecimalType {
		return decimalRank
	}
	if t.PkgPath() != "" {
		// Named types such as enums do not take part in promotion.
		return 0
	}
	return numericRank[t.Kind()]
}

// IsNumeric reports whether t takes part in arithmetic.
func IsNumeric(t reflect.Type) bool { return t != nil && rank(t) > 0 }

// IsOrdered reports whether values of t can be compared with < and >.
func IsOrdered(t reflect.Type) bool {
	return IsNumeric(t) || t == StringType || t == TimeType
}

func isInteger(t reflect.Type) bool {
	r := rank(t)
	return r > 0 && r < numericRank[reflect.Float32]
}

func isUnsigned(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return t.PkgPath() == ""
	}
	return false
}

func isNillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// ElementType returns the element type of a slice or array type.
func ElementType(t reflect.Type) (reflect.Type, bool) {
	if t == nil {
		return nil, false
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem(), true
	}
	return nil, false
}

// IsWidening reports whether converting a numeric from to to loses no range.
func IsWidening(from, to reflect.Type) bool {
	if !IsNumeric(from) || !IsNumeric(to) {
		return false
	}
	if isUnsigned(from) != isUnsigned(to) && isInteger(to) {
		return isUnsigned(from) && rank(to) > rank(from)
	}
	return rank(to) >= rank(from)
}

// CanConvert reports whether Convert accepts a conversion from from to to.
func CanConvert(from, to reflect.Type) bool {
	switch {
	case from == to:
		return true
	case IsNumeric(from) && IsNumeric(to):
		return true
	case to.Kind() == reflect.Interface:
		return from.Implements(to) || from.Kind() == reflect.Interface
	case from.Kind() == reflect.Interface:
		return to.Implements(from)
	}
	return false
}

// Coerce brings two operands of a binary operator to a common type. Numeric operands
// are promoted to the wider type, and a null constant takes the type of the other side.
// Constants are converted in place rather than wrapped in a Convert node.
func Coerce(left, right Expr) (Expr, Expr, error) {
	lt, rt := left.Type(), right.Type()
	if lt == rt {
		return left, right, nil
	}
	if isNullConstant(left) {
		c, err := TypedConstant(nil, rt)
		return c, right, err
	}
	if isNullConstant(right) {
		c, err := TypedConstant(nil, lt)
		return left, c, err
	}
	if !IsNumeric(lt) || !IsNumeric(rt) {
		return nil, nil, fmt.Errorf("operand types %s and %s are incompatible", lt, rt)
	}
	target := lt
	if rank(rt) > rank(lt) {
		target = rt
	}
	l, err := convertTo(left, target)
	if err != nil {
		return nil, nil, err
	}
	r, err := convertTo(right, target)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

func convertTo(e Expr, t reflect.Type) (Expr, error) {
	if e.Type() == t {
		return e, nil
	}
	if c, ok := e.(*Constant); ok {
		v, err := convertValue(c.Value, t)
		if err != nil {
			return nil, err
		}
		return &Constant{Value: v, typ: t}, nil
	}
	return Convert(e, t)
}

// convertValue converts a runtime value to t following Convert semantics.
func convertValue(v any, t reflect.Type) (any, error) {
	if v == nil {
		if isNillable(t) {
			return reflect.Zero(t).Interface(), nil
		}
		return nil, fmt.Errorf("cannot convert null to %s", t)
	}
	src := reflect.TypeOf(v)
	if src == t {
		return v, nil
	}
	if t == DecimalType {
		return toDecimal(v)
	}
	if d, ok := v.(decimal.Decimal); ok && IsNumeric(t) {
		if isInteger(t) {
			return reflect.ValueOf(d.IntPart()).Convert(t).Interface(), nil
		}
		return reflect.ValueOf(d.InexactFloat64()).Convert(t).Interface(), nil
	}
	if IsNumeric(src) && IsNumeric(t) {
		return reflect.ValueOf(v).Convert(t).Interface(), nil
	}
	if src.AssignableTo(t) {
		if t.Kind() == reflect.Interface {
			return v, nil
		}
		return reflect.ValueOf(v).Convert(t).Interface(), nil
	}
	return nil, fmt.Errorf("invalid cast from %s to %s", src, t)
}

func toDecimal(v any) (decimal.Decimal, error) {
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return decimal.NewFromInt(rv.Int()), nil
	case rv.CanUint():
		return decimal.RequireFromString(strconv.FormatUint(rv.Uint(), 10)), nil
	case rv.CanFloat():
		return decimal.NewFromFloat(rv.Float()), nil
	}
	return decimal.Decimal{}, fmt.Errorf("cannot convert %T to decimal", v)
}
