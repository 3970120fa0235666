package expr

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
)

var errEmptySequence = errors.New("sequence contains no elements")

func sourceElem(args []Expr, i int) (reflect.Type, error) {
	elem, ok := ElementType(args[i].Type())
	if !ok {
		return nil, fmt.Errorf("argument %d must be a collection, got %s", i, args[i].Type())
	}
	return elem, nil
}

func lambdaArg(args []Expr, i int, params ...reflect.Type) (*Lambda, error) {
	l, ok := args[i].(*Lambda)
	if !ok {
		return nil, fmt.Errorf("argument %d must be a lambda", i)
	}
	if len(l.Params) != len(params) {
		return nil, fmt.Errorf("argument %d: lambda takes %d parameters, want %d", i, len(l.Params), len(params))
	}
	for j, p := range l.Params {
		if p.Type() != params[j] {
			return nil, fmt.Errorf("argument %d: lambda parameter %s is %s, want %s", i, p.Name, p.Type(), params[j])
		}
	}
	return l, nil
}

func predicateArg(args []Expr, i int, elem reflect.Type) error {
	l, err := lambdaArg(args, i, elem)
	if err != nil {
		return err
	}
	if l.ReturnType() != BoolType {
		return fmt.Errorf("argument %d: predicate must return bool, got %s", i, l.ReturnType())
	}
	return nil
}

// sequence is the common shape of the collection methods: a source collection,
// optionally followed by more arguments validated by rest.
func sequence(name string, minArgs, maxArgs int, rest func(args []Expr, elem reflect.Type) (reflect.Type, error), invoke func(args []any) (any, error)) *Method {
	return &Method{
		Name: name,
		check: func(args []Expr) (reflect.Type, error) {
			if len(args) < minArgs || len(args) > maxArgs {
				return nil, errArgCount
			}
			elem, err := sourceElem(args, 0)
			if err != nil {
				return nil, err
			}
			return rest(args, elem)
		},
		invoke: invoke,
	}
}

func items(v any) []reflect.Value {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]reflect.Value, rv.Len())
	for i := range out {
		out[i] = rv.Index(i)
	}
	return out
}

func sliceType(v any) reflect.Type {
	return reflect.TypeOf(v)
}

func applyClosure(c any, args ...reflect.Value) (any, error) {
	cl, ok := c.(*Closure)
	if !ok {
		return nil, fmt.Errorf("expected a closure, got %T", c)
	}
	in := make([]any, len(args))
	for i, a := range args {
		in[i] = a.Interface()
	}
	return cl.Call(in...)
}

func test(c any, x reflect.Value) (bool, error) {
	v, err := applyClosure(c, x)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func appendValue(out reflect.Value, v any, elem reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Append(out, reflect.Zero(elem))
	}
	rv := reflect.ValueOf(v)
	if rv.Type() != elem {
		rv = rv.Convert(elem)
	}
	return reflect.Append(out, rv)
}

func filterItems(src any, pred any) ([]reflect.Value, error) {
	all := items(src)
	if pred == nil {
		return all, nil
	}
	out := all[:0:0]
	for _, x := range all {
		ok, err := test(pred, x)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, x)
		}
	}
	return out, nil
}

func optionalArg(args []any, i int) any {
	if len(args) > i {
		return args[i]
	}
	return nil
}

func toInt(v any) int {
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return int(rv.Int())
	case rv.CanUint():
		return int(rv.Uint())
	}
	return 0
}

func sameSource(args []Expr, elem reflect.Type) reflect.Type { return args[0].Type() }

// Query-shape methods.
var (
	MethodWhere = sequence("Where", 2, 2, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		if err := predicateArg(args, 1, elem); err != nil {
			return nil, err
		}
		return sameSource(args, elem), nil
	}, func(args []any) (any, error) {
		kept, err := filterItems(args[0], args[1])
		if err != nil {
			return nil, err
		}
		out := reflect.MakeSlice(sliceType(args[0]), 0, len(kept))
		return reflect.Append(out, kept...).Interface(), nil
	})

	MethodSelect = sequence("Select", 2, 2, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		l, err := lambdaArg(args, 1, elem)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(l.ReturnType()), nil
	}, func(args []any) (any, error) {
		sel := args[1].(*Closure)
		elem := sel.Lambda.ReturnType()
		out := reflect.MakeSlice(reflect.SliceOf(elem), 0, 0)
		for _, x := range items(args[0]) {
			v, err := applyClosure(sel, x)
			if err != nil {
				return nil, err
			}
			out = appendValue(out, v, elem)
		}
		return out.Interface(), nil
	})

	MethodSelectMany = sequence("SelectMany", 2, 2, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		l, err := lambdaArg(args, 1, elem)
		if err != nil {
			return nil, err
		}
		if _, ok := ElementType(l.ReturnType()); !ok {
			return nil, fmt.Errorf("selector must return a collection, got %s", l.ReturnType())
		}
		return l.ReturnType(), nil
	}, func(args []any) (any, error) {
		sel := args[1].(*Closure)
		out := reflect.MakeSlice(sel.Lambda.ReturnType(), 0, 0)
		for _, x := range items(args[0]) {
			v, err := applyClosure(sel, x)
			if err != nil {
				return nil, err
			}
			out = reflect.Append(out, items(v)...)
		}
		return out.Interface(), nil
	})

	MethodSkip = sequence("Skip", 2, 2, countArg, func(args []any) (any, error) {
		all := items(args[0])
		n := min(max(toInt(args[1]), 0), len(all))
		return reflect.Append(reflect.MakeSlice(sliceType(args[0]), 0, len(all)-n), all[n:]...).Interface(), nil
	})

	MethodTake = sequence("Take", 2, 2, countArg, func(args []any) (any, error) {
		all := items(args[0])
		n := min(max(toInt(args[1]), 0), len(all))
		return reflect.Append(reflect.MakeSlice(sliceType(args[0]), 0, n), all[:n]...).Interface(), nil
	})

	MethodGroupBy = sequence("GroupBy", 2, 3, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		if _, err := lambdaArg(args, 1, elem); err != nil {
			return nil, err
		}
		if !args[1].(*Lambda).ReturnType().Comparable() {
			return nil, fmt.Errorf("group key %s is not comparable", args[1].(*Lambda).ReturnType())
		}
		if len(args) == 3 {
			if _, err := lambdaArg(args, 2, elem); err != nil {
				return nil, err
			}
		}
		return reflect.SliceOf(GroupType), nil
	}, invokeGroupBy)

	MethodOfType = sequence("OfType", 2, 2, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		c, ok := args[1].(*Constant)
		if !ok {
			return nil, errors.New("second argument must be a type operand")
		}
		target, ok := c.Value.(reflect.Type)
		if !ok {
			return nil, errors.New("second argument must be a type operand")
		}
		if !CanConvert(elem, target) {
			return nil, fmt.Errorf("elements of %s can never be %s", elem, target)
		}
		return reflect.SliceOf(target), nil
	}, func(args []any) (any, error) {
		target := args[1].(reflect.Type)
		out := reflect.MakeSlice(reflect.SliceOf(target), 0, 0)
		for _, x := range items(args[0]) {
			if x.Kind() == reflect.Interface {
				if x.IsNil() {
					continue
				}
				x = x.Elem()
			}
			if x.Type().AssignableTo(target) {
				out = reflect.Append(out, x)
			}
		}
		return out.Interface(), nil
	})

	MethodDistinct = sequence("Distinct", 1, 1, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		if !elem.Comparable() {
			return nil, fmt.Errorf("elements of type %s are not comparable", elem)
		}
		return args[0].Type(), nil
	}, func(args []any) (any, error) {
		seen := make(map[any]struct{})
		out := reflect.MakeSlice(sliceType(args[0]), 0, 0)
		for _, x := range items(args[0]) {
			k := x.Interface()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = reflect.Append(out, x)
		}
		return out.Interface(), nil
	})

	MethodZip = sequence("Zip", 3, 3, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		second, err := sourceElem(args, 1)
		if err != nil {
			return nil, err
		}
		l, err := lambdaArg(args, 2, elem, second)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(l.ReturnType()), nil
	}, func(args []any) (any, error) {
		res := args[2].(*Closure)
		elem := res.Lambda.ReturnType()
		a, b := items(args[0]), items(args[1])
		out := reflect.MakeSlice(reflect.SliceOf(elem), 0, min(len(a), len(b)))
		for i := 0; i < len(a) && i < len(b); i++ {
			v, err := applyClosure(res, a[i], b[i])
			if err != nil {
				return nil, err
			}
			out = appendValue(out, v, elem)
		}
		return out.Interface(), nil
	})

	MethodDefaultIfEmpty = sequence("DefaultIfEmpty", 1, 2, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		if len(args) == 2 && args[1].Type() != elem && !isNullConstant(args[1]) {
			return nil, fmt.Errorf("default value must be %s, got %s", elem, args[1].Type())
		}
		return args[0].Type(), nil
	}, func(args []any) (any, error) {
		all := items(args[0])
		st := sliceType(args[0])
		if len(all) > 0 {
			return args[0], nil
		}
		return appendValue(reflect.MakeSlice(st, 0, 1), optionalArg(args, 1), st.Elem()).Interface(), nil
	})
)

func countArg(args []Expr, elem reflect.Type) (reflect.Type, error) {
	if !isInteger(args[1].Type()) {
		return nil, fmt.Errorf("count must be an integer, got %s", args[1].Type())
	}
	return args[0].Type(), nil
}

func invokeGroupBy(args []any) (any, error) {
	key := args[1].(*Closure)
	var sel *Closure
	if len(args) == 3 {
		sel = args[2].(*Closure)
	}
	itemType := sliceType(args[0])
	if sel != nil {
		itemType = reflect.SliceOf(sel.Lambda.ReturnType())
	}
	var order []any
	groups := make(map[any]reflect.Value)
	for _, x := range items(args[0]) {
		k, err := applyClosure(key, x)
		if err != nil {
			return nil, err
		}
		g, ok := groups[k]
		if !ok {
			g = reflect.MakeSlice(itemType, 0, 1)
			order = append(order, k)
		}
		if sel != nil {
			v, err := applyClosure(sel, x)
			if err != nil {
				return nil, err
			}
			g = appendValue(g, v, itemType.Elem())
		} else {
			g = reflect.Append(g, x)
		}
		groups[k] = g
	}
	out := make([]Group, len(order))
	for i, k := range order {
		out[i] = Group{Key: k, Items: groups[k].Interface()}
	}
	return out, nil
}

// Scalar collection methods.
var (
	MethodAny = sequence("Any", 1, 2, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		if len(args) == 2 {
			if err := predicateArg(args, 1, elem); err != nil {
				return nil, err
			}
		}
		return BoolType, nil
	}, func(args []any) (any, error) {
		for _, x := range items(args[0]) {
			if len(args) == 1 {
				return true, nil
			}
			ok, err := test(args[1], x)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	})

	MethodAll = sequence("All", 2, 2, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		if err := predicateArg(args, 1, elem); err != nil {
			return nil, err
		}
		return BoolType, nil
	}, func(args []any) (any, error) {
		for _, x := range items(args[0]) {
			ok, err := test(args[1], x)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})

	MethodCount = sequence("Count", 1, 2, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		if len(args) == 2 {
			if err := predicateArg(args, 1, elem); err != nil {
				return nil, err
			}
		}
		return Int32Type, nil
	}, func(args []any) (any, error) {
		kept, err := filterItems(args[0], optionalArg(args, 1))
		if err != nil {
			return nil, err
		}
		return int32(len(kept)), nil
	})

	MethodSum     = aggregate("Sum", sumValues)
	MethodMin     = aggregate("Min", extremeValue(-1))
	MethodMax     = aggregate("Max", extremeValue(1))
	MethodAverage = aggregate("Average", averageValues)

	MethodFirst          = first("First", true)
	MethodFirstOrDefault = first("FirstOrDefault", false)

	MethodSequenceContains = sequence("SequenceContains", 2, 2, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		if args[1].Type() != elem {
			return nil, fmt.Errorf("value must be %s, got %s", elem, args[1].Type())
		}
		return BoolType, nil
	}, func(args []any) (any, error) {
		for _, x := range items(args[0]) {
			if valuesEqual(x.Interface(), args[1]) {
				return true, nil
			}
		}
		return false, nil
	})
)

func first(name string, strict bool) *Method {
	return sequence(name, 1, 2, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		if len(args) == 2 {
			if err := predicateArg(args, 1, elem); err != nil {
				return nil, err
			}
		}
		return elem, nil
	}, func(args []any) (any, error) {
		kept, err := filterItems(args[0], optionalArg(args, 1))
		if err != nil {
			return nil, err
		}
		if len(kept) == 0 {
			if strict {
				return nil, errEmptySequence
			}
			return reflect.Zero(sliceType(args[0]).Elem()).Interface(), nil
		}
		return kept[0].Interface(), nil
	})
}

// aggregate builds Sum/Min/Max/Average: a numeric collection or a collection with a
// numeric selector.
func aggregate(name string, reduce func(vals []any, t reflect.Type) (any, error)) *Method {
	resultType := func(t reflect.Type) reflect.Type {
		if name == "Average" && t != DecimalType {
			return Float64Type
		}
		return t
	}
	return sequence(name, 1, 2, func(args []Expr, elem reflect.Type) (reflect.Type, error) {
		t := elem
		if len(args) == 2 {
			l, err := lambdaArg(args, 1, elem)
			if err != nil {
				return nil, err
			}
			t = l.ReturnType()
		}
		if !IsNumeric(t) && (name == "Sum" || name == "Average" || !IsOrdered(t)) {
			return nil, fmt.Errorf("cannot aggregate values of type %s", t)
		}
		return resultType(t), nil
	}, func(args []any) (any, error) {
		all := items(args[0])
		t := sliceType(args[0]).Elem()
		vals := make([]any, len(all))
		for i, x := range all {
			vals[i] = x.Interface()
		}
		if len(args) == 2 {
			sel := args[1].(*Closure)
			t = sel.Lambda.ReturnType()
			for i, x := range all {
				v, err := applyClosure(sel, x)
				if err != nil {
					return nil, err
				}
				vals[i] = v
			}
		}
		return reduce(vals, t)
	})
}

func sumValues(vals []any, t reflect.Type) (any, error) {
	acc := reflect.Zero(t).Interface()
	for _, v := range vals {
		var err error
		if acc, err = arithmetic(OpAdd, acc, v, t); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func extremeValue(sign int) func(vals []any, t reflect.Type) (any, error) {
	return func(vals []any, t reflect.Type) (any, error) {
		if len(vals) == 0 {
			return nil, errEmptySequence
		}
		best := vals[0]
		for _, v := range vals[1:] {
			c, err := compareValues(v, best)
			if err != nil {
				return nil, err
			}
			if c*sign > 0 {
				best = v
			}
		}
		return best, nil
	}
}

func averageValues(vals []any, t reflect.Type) (any, error) {
	if len(vals) == 0 {
		return nil, errEmptySequence
	}
	sum, err := sumValues(vals, t)
	if err != nil {
		return nil, err
	}
	if d, ok := sum.(decimal.Decimal); ok {
		return d.Div(decimal.NewFromInt(int64(len(vals)))), nil
	}
	f, err := convertValue(sum, Float64Type)
	if err != nil {
		return nil, err
	}
	return f.(float64) / float64(len(vals)), nil
}

// Call builders for the collection methods.

func Where(src Expr, pred *Lambda) (*Call, error)       { return NewCall(MethodWhere, src, pred) }
func Select(src Expr, sel *Lambda) (*Call, error)       { return NewCall(MethodSelect, src, sel) }
func SelectMany(src Expr, sel *Lambda) (*Call, error)   { return NewCall(MethodSelectMany, src, sel) }
func Skip(src Expr, n int) (*Call, error)               { return NewCall(MethodSkip, src, NewConstant(int32(n))) }
func Take(src Expr, n int) (*Call, error)               { return NewCall(MethodTake, src, NewConstant(int32(n))) }
func Distinct(src Expr) (*Call, error)                  { return NewCall(MethodDistinct, src) }
func OfType(src Expr, t reflect.Type) (*Call, error)    { return NewCall(MethodOfType, src, TypeOperand(t)) }
func Zip(a, b Expr, result *Lambda) (*Call, error)      { return NewCall(MethodZip, a, b, result) }
func DefaultIfEmpty(src Expr) (*Call, error)            { return NewCall(MethodDefaultIfEmpty, src) }
func GroupBy(src Expr, key *Lambda) (*Call, error)      { return NewCall(MethodGroupBy, src, key) }
func Any(src Expr, pred *Lambda) (*Call, error)         { return callOptional(MethodAny, src, pred) }
func All(src Expr, pred *Lambda) (*Call, error)         { return NewCall(MethodAll, src, pred) }
func Count(src Expr, pred *Lambda) (*Call, error)       { return callOptional(MethodCount, src, pred) }
func Sum(src Expr, sel *Lambda) (*Call, error)          { return callOptional(MethodSum, src, sel) }
func FirstOrDefault(src Expr, p *Lambda) (*Call, error) { return callOptional(MethodFirstOrDefault, src, p) }

func callOptional(m *Method, src Expr, l *Lambda) (*Call, error) {
	if l == nil {
		return NewCall(m, src)
	}
	return NewCall(m, src, l)
}
