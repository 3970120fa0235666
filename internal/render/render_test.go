package render

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlstn/go-querytext/expr"
	"github.com/nlstn/go-querytext/internal/ast"
	"github.com/nlstn/go-querytext/internal/convert"
	"github.com/nlstn/go-querytext/internal/metadata"
	"github.com/nlstn/go-querytext/internal/qerrors"
)

type Status string

type Sub struct {
	SomeString string
	Total      float64
}

type Item struct {
	ID         int
	Jalla      string
	Price      float64
	Amount     decimal.Decimal
	Status     Status
	SomeList   []Sub
	Tags       []string
	Attributes map[string]string
	Created    time.Time
	Key        uuid.UUID
	Parent     *Item
	Secret     string `query:"-"`
}

type Shape interface{ Area() float64 }

type Circle struct{ R float64 }

func (c Circle) Area() float64 { return 3 * c.R * c.R }

var itemType = reflect.TypeOf(Item{})

func newResolver(t *testing.T) *metadata.Resolver {
	t.Helper()
	r, err := metadata.NewResolver(itemType, reflect.TypeOf(Circle{}))
	require.NoError(t, err)
	return r
}

func parseFilter(t *testing.T, text string) *expr.Lambda {
	t.Helper()
	node, err := ast.NewBuilder(0).Parse(text)
	require.NoError(t, err, text)
	l, err := convert.Filter(node, itemType, newResolver(t))
	require.NoError(t, err, text)
	return l
}

func TestRenderRoundTrip(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"jalla eq 'What'", "jalla eq 'What'"},
		{"this.jalla eq 'What'", "jalla eq 'What'"},
		{"id gt 5", "id gt 5"},
		{"id gt 5L", "id gt 5L"},
		{"price mul 2 eq 5.0", "price mul 2.0 eq 5.0"},
		{"amount gt 1.5m", "amount gt 1.5m"},
		{"status eq 'Active'", "status eq 'Active'"},
		{"not (status eq 'Active')", "not status eq 'Active'"},
		{"key eq guid'6ba7b810-9dad-11d1-80b4-00c04fd430c8'", "key eq guid'6ba7b810-9dad-11d1-80b4-00c04fd430c8'"},
		{"created eq datetime'2012-10-22T05:32:45Z'", "created eq datetime'2012-10-22T05:32:45Z'"},
		{"created lt datetime'2013-01-01T10:00:00'", "created lt datetime'2013-01-01T10:00:00'"},
		{"parent eq null", "parent eq null"},
		{"parent.jalla eq ''", "parent.jalla eq ''"},
		{"jalla eq 'it''s'", "jalla eq 'it''s'"},
		{"substringof('ha', jalla)", "substringof('ha',jalla)"},
		{"jalla.contains('ha')", "substringof('ha',jalla)"},
		{"startswith(jalla, 'Wh')", "startswith(jalla,'Wh')"},
		{"jalla.toupper() eq 'WHAT'", "toupper(jalla) eq 'WHAT'"},
		{"length(jalla) eq 4", "length(jalla) eq 4"},
		{"someList.any(y:y.someString eq 'lalala')", "someList.any(y:y.someString eq 'lalala')"},
		{"someList.any()", "someList.any()"},
		{"someList.count() eq 2", "count(someList) eq 2"},
		{"someList.count(s:s.total gt 10) eq 1", "someList.count(s:s.total gt 10.0) eq 1"},
		{"someList.where(s:s.total lt 5).any()", "someList.where(s:s.total lt 5.0).any()"},
		{"someList.take(1).count() eq 1", "count(someList.take(1)) eq 1"},
		{"tags.contains('b')", "tags.contains('b')"},
		{"attributes.color eq 'red'", "attributes.color eq 'red'"},
		{"attributes.get('not an ident') eq 'x'", "attributes.get('not an ident') eq 'x'"},
		{"tags[0] eq 'a'", "tags[0] eq 'a'"},
		{"jalla eq 'What' and (id lt 0 or price gt 1)", "jalla eq 'What' and (id lt 0 or price gt 1.0)"},
		{"(id add 1) mul 2 eq 16", "(id add 1) mul 2 eq 16"},
		{"id sub (1 sub id) eq 0", "id sub (1 sub id) eq 0"},
		{"id sub 1 sub id eq 0", "id sub 1 sub id eq 0"},
	}

	enc := New()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			l := parseFilter(t, tt.text)
			got, err := enc.Render(l)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again := parseFilter(t, got)
			assert.True(t, expr.StructuralEqual(l, again), "%s reparsed as %s", got, again)
		})
	}
}

type Ledger struct {
	True  bool
	Mod   int
	Null  *int
	Café  string
	Notes map[string]string
}

func TestRenderNamesOutsideTheGrammar(t *testing.T) {
	ledgerType := reflect.TypeOf(Ledger{})
	r, err := metadata.NewResolver(ledgerType)
	require.NoError(t, err)
	parse := func(text string) *expr.Lambda {
		node, err := ast.NewBuilder(0).Parse(text)
		require.NoError(t, err, text)
		l, err := convert.Filter(node, ledgerType, r)
		require.NoError(t, err, text)
		return l
	}

	tests := []struct {
		text string
		want string
	}{
		{"this.true eq false", "this.true eq false"},
		{"this.mod eq 3", "this.mod eq 3"},
		{"this.mod mod 2 eq 1", "this.mod mod 2 eq 1"},
		{"this.null eq null", "this.null eq null"},
		{"café eq 'ü'", "café eq 'ü'"},
		{"notes.café eq 'x'", "notes.café eq 'x'"},
		{"notes.true eq 'x'", "notes.true eq 'x'"},
	}

	enc := New()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			l := parse(tt.text)
			got, err := enc.Render(l)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again := parse(got)
			assert.True(t, expr.StructuralEqual(l, again), "%s reparsed as %s", got, again)
		})
	}

	x := expr.NewParameter("x", ledgerType)
	flag, err := expr.Field(x, "True")
	require.NoError(t, err)
	got, err := enc.Render(expr.NewLambda(flag, x))
	require.NoError(t, err)
	assert.Equal(t, "this.true", got)
}

func TestRenderFoldsClosedSubtrees(t *testing.T) {
	got, err := New().Render(parseFilter(t, "jalla eq concat('Wh', 'at') and id lt length('abc')"))
	require.NoError(t, err)
	assert.Equal(t, "jalla eq 'What' and id lt 3", got)
}

func TestRenderLiterals(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{nil, "null"},
		{true, "true"},
		{"it's", "'it''s'"},
		{Status("x"), "'x'"},
		{int32(5), "5"},
		{5, "5"},
		{int64(5), "5L"},
		{1 << 40, "1099511627776L"},
		{uint64(7), "7L"},
		{1.5, "1.5"},
		{2.0, "2.0"},
		{float32(1.5), "1.5f"},
		{float32(2), "2.0f"},
		{decimal.RequireFromString("1.5"), "1.5m"},
		{uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), "guid'6ba7b810-9dad-11d1-80b4-00c04fd430c8'"},
		{time.Date(2012, 10, 22, 5, 32, 45, 0, time.UTC), "datetime'2012-10-22T05:32:45Z'"},
		{[]int32{1, 2}, "[1,2]"},
		{[]string{}, "[]"},
		{(*Item)(nil), "null"},
	}

	enc := New()
	for _, tt := range tests {
		got, err := enc.Render(expr.NewConstant(tt.value))
		require.NoError(t, err, "%v", tt.value)
		assert.Equal(t, tt.want, got)
	}

	for _, v := range []any{math.NaN(), math.Inf(1), uint64(math.MaxUint64), Circle{}, map[string]int{"a": 1}} {
		_, err := enc.Render(expr.NewConstant(v))
		assert.ErrorIs(t, err, qerrors.ErrUnsupportedOperator, "%v", v)
	}
}

func TestRenderLambdaNames(t *testing.T) {
	root := expr.NewParameter("o", itemType)
	list, err := expr.Field(root, "SomeList")
	require.NoError(t, err)

	anyWith := func(name string) *expr.Lambda {
		p := expr.NewParameter(name, reflect.TypeOf(Sub{}))
		s, err := expr.Field(p, "SomeString")
		require.NoError(t, err)
		eq, err := expr.NewBinary(expr.OpEqual, s, expr.NewConstant("x"))
		require.NoError(t, err)
		call, err := expr.Any(list, expr.NewLambda(eq, p))
		require.NoError(t, err)
		return expr.NewLambda(call, root)
	}

	enc := New()
	got, err := enc.Render(anyWith("id"))
	require.NoError(t, err)
	assert.Equal(t, "someList.any(id1:id1.someString eq 'x')", got)

	got, err = enc.Render(anyWith("this"))
	require.NoError(t, err)
	assert.Equal(t, "someList.any(x:x.someString eq 'x')", got)

	got, err = enc.Render(anyWith("item"))
	require.NoError(t, err)
	assert.Equal(t, "someList.any(item:item.someString eq 'x')", got)
}

func TestRenderTypeFunctions(t *testing.T) {
	shape := expr.NewParameter("s", reflect.TypeOf((*Shape)(nil)).Elem())
	circle := reflect.TypeOf(Circle{})

	is, err := expr.NewTypeIs(shape, circle)
	require.NoError(t, err)
	got, err := New().Render(expr.NewLambda(is, shape))
	require.NoError(t, err)
	assert.Equal(t, "isof(Circle)", got)

	cast, err := expr.Convert(shape, circle)
	require.NoError(t, err)
	r, err := expr.Field(cast, "R")
	require.NoError(t, err)
	got, err = New().Render(expr.NewLambda(r, shape))
	require.NoError(t, err)
	assert.Equal(t, "cast(Circle).r", got)
}

func TestRenderUnsupported(t *testing.T) {
	root := expr.NewParameter("o", itemType)
	jalla, err := expr.Field(root, "Jalla")
	require.NoError(t, err)
	id, err := expr.Field(root, "ID")
	require.NoError(t, err)
	secret, err := expr.Field(root, "Secret")
	require.NoError(t, err)

	shout := expr.Func("shout", func(s string) string { return strings.ToUpper(s) })
	local, err := expr.NewCall(shout, jalla)
	require.NoError(t, err)
	negated, err := expr.Negate(id)
	require.NoError(t, err)

	enc := New()
	for name, e := range map[string]expr.Expr{
		"local method": local,
		"negation":     negated,
		"hidden field": secret,
		"query root":   expr.NewQueryRoot("items", itemType),
		"bare lambda":  expr.NewLambda(jalla, expr.NewParameter("p", itemType)),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := enc.Render(expr.NewLambda(e, root))
			require.Error(t, err)
			assert.True(t, errors.Is(err, qerrors.ErrUnsupportedOperator), err.Error())
		})
	}

	_, err = enc.Render(expr.NewLambda(jalla, root, expr.NewParameter("b", itemType)))
	assert.ErrorIs(t, err, qerrors.ErrUnsupportedOperator)
}

func TestRenderSelect(t *testing.T) {
	items, err := ast.NewBuilder(0).ParseList("id, jalla")
	require.NoError(t, err)
	l, err := convert.Select(items, itemType, newResolver(t))
	require.NoError(t, err)

	got, err := New().RenderSelect(l)
	require.NoError(t, err)
	assert.Equal(t, "[id,jalla] as this", got)
}

func TestCanRender(t *testing.T) {
	root := expr.NewParameter("o", itemType)
	secret, err := expr.Field(root, "Secret")
	require.NoError(t, err)
	jalla, err := expr.Field(root, "Jalla")
	require.NoError(t, err)
	local, err := expr.NewCall(expr.Func("shout", strings.ToUpper), jalla)
	require.NoError(t, err)
	upper, err := expr.NewCall(expr.MethodToUpper, jalla)
	require.NoError(t, err)

	enc := New()
	assert.True(t, enc.CanRender(jalla))
	assert.True(t, enc.CanRender(upper))
	assert.True(t, enc.CanRender(expr.NewConstant(3)))
	assert.False(t, enc.CanRender(secret))
	assert.False(t, enc.CanRender(local))
	assert.False(t, enc.CanRender(expr.NewConstant(Circle{})))
	assert.False(t, enc.CanRender(expr.NewQueryRoot("items", itemType)))
}
