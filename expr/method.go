package expr

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Method is a callable known to the expression tree. Built-in methods are package
// level values and are compared by identity; Func wraps an arbitrary Go function as a
// local-only method that has no query text equivalent.
type Method struct {
	Name string
	// Local marks methods that only exist in this process.
	Local bool

	check  func(args []Expr) (reflect.Type, error)
	invoke func(args []any) (any, error)
}

func (m *Method) String() string { return m.Name }

// Invoke calls the method with already evaluated arguments. Lambda arguments are
// passed as *Closure values.
func (m *Method) Invoke(args []any) (any, error) { return m.invoke(args) }

var errArgCount = errors.New("wrong number of arguments")

// Func wraps fn as a local-only method. fn must be a function returning one value,
// optionally followed by an error.
func Func(name string, fn any) *Method {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		panic(fmt.Sprintf("expr.Func(%s): %T is not a function", name, fn))
	}
	errType := reflect.TypeOf((*error)(nil)).Elem()
	withErr := ft.NumOut() == 2 && ft.Out(1) == errType
	if ft.NumOut() != 1 && !withErr {
		panic(fmt.Sprintf("expr.Func(%s): function must return a value and an optional error", name))
	}
	return &Method{
		Name:  name,
		Local: true,
		check: func(args []Expr) (reflect.Type, error) {
			if len(args) != ft.NumIn() {
				return nil, errArgCount
			}
			for i, a := range args {
				if !a.Type().AssignableTo(ft.In(i)) {
					return nil, fmt.Errorf("argument %d: %s is not assignable to %s", i, a.Type(), ft.In(i))
				}
			}
			return ft.Out(0), nil
		},
		invoke: func(args []any) (any, error) {
			var callErr error
			in := make([]reflect.Value, len(args))
			for i, a := range args {
				switch a := a.(type) {
				case nil:
					in[i] = reflect.Zero(ft.In(i))
				case *Closure:
					in[i] = closureFunc(a, ft.In(i), &callErr)
				default:
					in[i] = reflect.ValueOf(a)
				}
			}
			out := fv.Call(in)
			if callErr != nil {
				return nil, callErr
			}
			if withErr && !out[1].IsNil() {
				return nil, out[1].Interface().(error)
			}
			return out[0].Interface(), nil
		},
	}
}

// closureFunc adapts c to a Go function of type ft. Evaluation errors are returned
// directly when ft ends in an error result; otherwise the first one is stored in
// errp and later calls return zero values.
func closureFunc(c *Closure, ft reflect.Type, errp *error) reflect.Value {
	errType := reflect.TypeOf((*error)(nil)).Elem()
	withErr := ft.NumOut() == 2 && ft.Out(1) == errType
	zero := func(err error) []reflect.Value {
		out := make([]reflect.Value, ft.NumOut())
		for i := range out {
			out[i] = reflect.Zero(ft.Out(i))
		}
		if withErr && err != nil {
			out[1] = reflect.ValueOf(&err).Elem()
		}
		return out
	}
	return reflect.MakeFunc(ft, func(in []reflect.Value) []reflect.Value {
		if *errp != nil {
			return zero(nil)
		}
		args := make([]any, len(in))
		for i, v := range in {
			args[i] = v.Interface()
		}
		v, err := c.Call(args...)
		if err != nil {
			if withErr {
				return zero(err)
			}
			*errp = err
			return zero(nil)
		}
		out := zero(nil)
		if v != nil {
			rv := reflect.ValueOf(v)
			if rv.Type() != ft.Out(0) && rv.Type().ConvertibleTo(ft.Out(0)) {
				rv = rv.Convert(ft.Out(0))
			}
			out[0] = rv
		}
		return out
	})
}

func stringMethod(name string, arity int, result reflect.Type, fn func(s []string) any) *Method {
	return &Method{
		Name: name,
		check: func(args []Expr) (reflect.Type, error) {
			if len(args) != arity {
				return nil, errArgCount
			}
			for i, a := range args {
				if a.Type() != StringType {
					return nil, fmt.Errorf("argument %d must be a string, got %s", i, a.Type())
				}
			}
			return result, nil
		},
		invoke: func(args []any) (any, error) {
			s := make([]string, len(args))
			for i, a := range args {
				s[i], _ = a.(string)
			}
			return fn(s), nil
		},
	}
}

// String methods. The receiver string is always the first argument.
var (
	MethodContains   = stringMethod("Contains", 2, BoolType, func(s []string) any { return strings.Contains(s[0], s[1]) })
	MethodStartsWith = stringMethod("StartsWith", 2, BoolType, func(s []string) any { return strings.HasPrefix(s[0], s[1]) })
	MethodEndsWith   = stringMethod("EndsWith", 2, BoolType, func(s []string) any { return strings.HasSuffix(s[0], s[1]) })
	MethodToLower    = stringMethod("ToLower", 1, StringType, func(s []string) any { return strings.ToLower(s[0]) })
	MethodToUpper    = stringMethod("ToUpper", 1, StringType, func(s []string) any { return strings.ToUpper(s[0]) })
	MethodTrim       = stringMethod("Trim", 1, StringType, func(s []string) any { return strings.TrimSpace(s[0]) })
	MethodConcat     = stringMethod("Concat", 2, StringType, func(s []string) any { return s[0] + s[1] })
	MethodLength     = stringMethod("Length", 1, Int32Type, func(s []string) any { return int32(len([]rune(s[0]))) })
	MethodIndexOf    = stringMethod("IndexOf", 2, Int32Type, func(s []string) any {
		i := strings.Index(s[0], s[1])
		if i < 0 {
			return int32(-1)
		}
		return int32(len([]rune(s[0][:i])))
	})
)

// Call builders for the string methods.

func StringContains(s, needle Expr) (*Call, error) { return NewCall(MethodContains, s, needle) }
func StartsWith(s, prefix Expr) (*Call, error)     { return NewCall(MethodStartsWith, s, prefix) }
func EndsWith(s, suffix Expr) (*Call, error)       { return NewCall(MethodEndsWith, s, suffix) }
