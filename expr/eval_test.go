package expr

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func people() []person {
	return []person{
		{Name: "ann", Age: 31, Score: 1.5},
		{Name: "bob", Age: 17, Score: 2.5},
		{Name: "cid", Age: 31, Score: 4},
	}
}

func TestEvalArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   BinaryOp
		l, r any
		want any
	}{
		{"int32 add", OpAdd, int32(2), int32(3), int32(5)},
		{"int64 mod", OpModulo, int64(7), int64(3), int64(1)},
		{"float divide", OpDivide, 7.0, 2.0, 3.5},
		{"float modulo", OpModulo, 7.5, 2.0, 1.5},
		{"uint subtract", OpSubtract, uint16(9), uint16(4), uint16(5)},
		{"decimal multiply", OpMultiply, decimal.RequireFromString("1.5"), decimal.NewFromInt(2), decimal.RequireFromString("3")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBinary(tt.op, NewConstant(tt.l), NewConstant(tt.r))
			require.NoError(t, err)
			got, err := Eval(b, nil)
			require.NoError(t, err)
			if d, ok := tt.want.(decimal.Decimal); ok {
				assert.True(t, d.Equal(got.(decimal.Decimal)), "got %v", got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalDivideByZero(t *testing.T) {
	b, err := NewBinary(OpDivide, NewConstant(int32(1)), NewConstant(int32(0)))
	require.NoError(t, err)
	_, err = Eval(b, nil)
	assert.ErrorIs(t, err, errDivideByZero)
}

func TestEvalComparisons(t *testing.T) {
	early := time.Date(2012, 10, 22, 5, 32, 45, 0, time.UTC)
	late := early.Add(time.Hour)
	tests := []struct {
		op   BinaryOp
		l, r any
		want bool
	}{
		{OpLessThan, "a", "b", true},
		{OpGreaterOrEqual, int32(3), int32(3), true},
		{OpGreaterThan, 2.5, 3.0, false},
		{OpLessOrEqual, early, late, true},
		{OpEqual, early, early.In(time.FixedZone("x", 3600)), true},
		{OpNotEqual, decimal.RequireFromString("1.50"), decimal.RequireFromString("1.5"), false},
	}
	for _, tt := range tests {
		b, err := NewBinary(tt.op, NewConstant(tt.l), NewConstant(tt.r))
		require.NoError(t, err)
		got, err := Eval(b, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, b.String())
	}
}

func TestEvalShortCircuit(t *testing.T) {
	boom := Func("Boom", func() (bool, error) { panic("evaluated") })
	call, err := NewCall(boom)
	require.NoError(t, err)

	and, err := NewBinary(OpAnd, NewConstant(false), call)
	require.NoError(t, err)
	got, err := Eval(and, nil)
	require.NoError(t, err)
	assert.Equal(t, false, got)

	or, err := NewBinary(OpOr, NewConstant(true), call)
	require.NoError(t, err)
	got, err = Eval(or, nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestEvalNilPropagation(t *testing.T) {
	p := NewParameter("p", personType)
	bossName := mustField(t, mustField(t, p, "Boss"), "Name")
	label, err := NewIndex(mustField(t, p, "Labels"), NewConstant("color"))
	require.NoError(t, err)

	env := NewEnv().Bind([]*Parameter{p}, []any{person{}})
	got, err := Eval(bossName, env)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = Eval(label, env)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	env = NewEnv().Bind([]*Parameter{p}, []any{person{Boss: &person{Name: "zed"}, Labels: map[string]string{"color": "red"}}})
	got, err = Eval(bossName, env)
	require.NoError(t, err)
	assert.Equal(t, "zed", got)
	got, err = Eval(label, env)
	require.NoError(t, err)
	assert.Equal(t, "red", got)
}

func TestEvalUnboundParameter(t *testing.T) {
	_, err := Eval(NewParameter("p", personType), nil)
	assert.Error(t, err)
	_, err = Eval(NewQueryRoot("people", personType), nil)
	assert.Error(t, err)
}

func TestEvalSequences(t *testing.T) {
	src := NewQueryRoot("people", personType)
	env := NewEnv().WithRoot("people", people())
	p := NewParameter("p", personType)
	age := mustField(t, p, "Age")
	adult, err := NewBinary(OpGreaterOrEqual, age, NewConstant(int32(18)))
	require.NoError(t, err)

	run := func(e Expr, err error) any {
		t.Helper()
		require.NoError(t, err)
		v, err := Eval(e, env)
		require.NoError(t, err)
		return v
	}

	where, err := Where(src, NewLambda(adult, p))
	require.NoError(t, err)
	names := run(Select(where, NewLambda(mustField(t, p, "Name"), p)))
	if diff := cmp.Diff([]string{"ann", "cid"}, names); diff != "" {
		t.Errorf("select mismatch (-want +got):\n%s", diff)
	}

	skipped := run(Skip(src, 1))
	assert.Len(t, skipped, 2)
	assert.Len(t, run(Take(src, 5)), 3)
	assert.Equal(t, int32(2), run(Count(src, NewLambda(adult, p))))
	assert.Equal(t, false, run(All(src, NewLambda(adult, p))))
	assert.Equal(t, 8.0, run(Sum(src, NewLambda(mustField(t, p, "Score"), p))))

	ages := run(Select(src, NewLambda(age, p)))
	distinct := run(Distinct(NewConstant(ages)))
	assert.Equal(t, []int32{31, 17}, distinct)

	groups := run(GroupBy(src, NewLambda(age, p))).([]Group)
	require.Len(t, groups, 2)
	assert.Equal(t, int32(31), groups[0].Key)
	assert.Len(t, groups[0].Items, 2)

	missing := run(FirstOrDefault(src, NewLambda(mustNot(t, adult), p)))
	assert.Equal(t, "bob", missing.(person).Name)

	empty, err := Where(src, NewLambda(NewConstant(false), p))
	require.NoError(t, err)
	zero := run(FirstOrDefault(empty, nil))
	assert.Equal(t, person{}, zero)
	padded := run(DefaultIfEmpty(empty))
	assert.Equal(t, []person{{}}, padded)

	mx, err := NewCall(MethodMax, src, NewLambda(mustField(t, p, "Score"), p))
	assert.Equal(t, 4.0, run(mx, err))
	avg, err := NewCall(MethodAverage, src, NewLambda(age, p))
	assert.InDelta(t, 26.333, run(avg, err), 0.001)

	first, err := NewCall(MethodFirst, empty)
	require.NoError(t, err)
	_, err = Eval(first, env)
	assert.ErrorIs(t, err, errEmptySequence)
}

func TestEvalZipAndOfType(t *testing.T) {
	a := NewConstant([]int32{1, 2, 3})
	b := NewConstant([]string{"x", "y"})
	x := NewParameter("x", Int32Type)
	y := NewParameter("y", StringType)
	zip, err := Zip(a, b, NewLambda(y, x, y))
	require.NoError(t, err)
	got, err := Eval(zip, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got)

	mixed := NewConstant([]any{1, "a", nil, 2})
	ints, err := OfType(mixed, IntType)
	require.NoError(t, err)
	got, err = Eval(ints, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
}

func TestLambdaCompile(t *testing.T) {
	p := NewParameter("p", personType)
	f := NewParameter("f", personType)
	named, err := NewBinary(OpEqual, mustField(t, f, "Name"), mustField(t, p, "Name"))
	require.NoError(t, err)
	self, err := Any(mustField(t, p, "Friends"), NewLambda(named, f))
	require.NoError(t, err)

	fn := NewLambda(self, p).Compile()
	got, err := fn(person{Name: "ann", Friends: []person{{Name: "bob"}, {Name: "ann"}}})
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = fn(person{Name: "ann"})
	require.NoError(t, err)
	assert.Equal(t, false, got)

	_, err = fn()
	assert.Error(t, err)
}

func TestFuncWithLambdaArgument(t *testing.T) {
	anyPos := Func("anyPos", func(xs []int32, f func(int32) bool) bool {
		for _, x := range xs {
			if f(x) {
				return true
			}
		}
		return false
	})
	v := NewParameter("v", Int32Type)
	positive, err := NewBinary(OpGreaterThan, v, NewConstant(int32(0)))
	require.NoError(t, err)

	call := func(elems ...Expr) Expr {
		arr, err := NewArrayOf(Int32Type, elems...)
		require.NoError(t, err)
		c, err := NewCall(anyPos, arr, NewLambda(positive, v))
		require.NoError(t, err)
		return c
	}

	got, err := Eval(call(NewConstant(int32(-1)), NewConstant(int32(1))), nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)
	got, err = Eval(call(NewConstant(int32(-1))), nil)
	require.NoError(t, err)
	assert.Equal(t, false, got)

	// Errors raised inside the lambda surface from the call.
	quotient, err := NewBinary(OpDivide, NewConstant(int32(1)), v)
	require.NoError(t, err)
	failing, err := NewBinary(OpGreaterThan, quotient, NewConstant(int32(0)))
	require.NoError(t, err)
	arr, err := NewArrayOf(Int32Type, NewConstant(int32(0)))
	require.NoError(t, err)
	c, err := NewCall(anyPos, arr, NewLambda(failing, v))
	require.NoError(t, err)
	_, err = Eval(c, nil)
	assert.ErrorIs(t, err, errDivideByZero)
}

func TestEvalConvertAndTypeIs(t *testing.T) {
	c, err := Convert(NewConstant(2.9), Int32Type)
	require.NoError(t, err)
	got, err := Eval(c, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), got)

	d, err := Convert(NewConstant(int32(3)), DecimalType)
	require.NoError(t, err)
	got, err = Eval(d, nil)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(got.(decimal.Decimal)))

	p := NewParameter("p", AnyType)
	is, err := NewTypeIs(p, reflect.TypeOf(""))
	require.NoError(t, err)
	got, err = Eval(is, NewEnv().Bind([]*Parameter{p}, []any{"s"}))
	require.NoError(t, err)
	assert.Equal(t, true, got)
	got, err = Eval(is, NewEnv().Bind([]*Parameter{p}, []any{nil}))
	require.NoError(t, err)
	assert.Equal(t, false, got)
}

func mustNot(t *testing.T, e Expr) Expr {
	t.Helper()
	n, err := Not(e)
	require.NoError(t, err)
	return n
}
