package render

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-querytext/internal/ast"
	"github.com/nlstn/go-querytext/internal/qerrors"
)

// literal renders a constant value. Integer suffixes follow the literal table of
// the tokenizer: int32 and smaller plain, int64 L, float32 f, decimal m.
func literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "null", nil
	case uuid.UUID:
		return "guid'" + x.String() + "'", nil
	case time.Time:
		return "datetime'" + ast.FormatDateTime(x) + "'", nil
	case decimal.Decimal:
		return x.String() + "m", nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.String:
		return quote(rv.String()), nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return strconv.FormatInt(intValue(rv), 10), nil
	case reflect.Int, reflect.Int64, reflect.Uint32:
		n := intValue(rv)
		s := strconv.FormatInt(n, 10)
		if rv.Kind() == reflect.Int64 || n < math.MinInt32 || n > math.MaxInt32 {
			s += "L"
		}
		return s, nil
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return "", qerrors.Unsupported("integer %d does not fit a query text literal", u)
		}
		return strconv.FormatUint(u, 10) + "L", nil
	case reflect.Float32:
		s, err := floatText(rv.Float(), 32)
		return s + "f", err
	case reflect.Float64:
		return floatText(rv.Float(), 64)
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			s, err := literal(rv.Index(i).Interface())
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	case reflect.Ptr, reflect.Interface, reflect.Map:
		if rv.IsNil() {
			return "null", nil
		}
	}
	return "", qerrors.Unsupported("value of type %T has no query text literal", v)
}

func intValue(rv reflect.Value) int64 {
	if rv.CanUint() {
		return int64(rv.Uint())
	}
	return rv.Int()
}

// floatText renders a finite float so that it reads back as a number and not an
// integer: integral values keep a ".0".
func floatText(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", qerrors.Unsupported("value %v has no query text literal", f)
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s, nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// canRenderValue reports whether literal accepts values like rv without evaluating
// slice elements.
func canRenderValue(rv reflect.Value) bool {
	switch rv.Interface().(type) {
	case uuid.UUID, time.Time, decimal.Decimal:
		return true
	}
	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Slice, reflect.Array:
		return true
	case reflect.Ptr, reflect.Interface, reflect.Map:
		return rv.IsNil()
	}
	return false
}
