package convert

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlstn/go-querytext/expr"
	"github.com/nlstn/go-querytext/internal/ast"
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
}

type Shape interface{ Area() float64 }

type Circle struct{ R float64 }

func (c Circle) Area() float64 { return 3 * c.R * c.R }

type Square struct{ S float64 }

func (s Square) Area() float64 { return s.S * s.S }

var itemType = reflect.TypeOf(Item{})

func newResolver(t *testing.T) *metadata.Resolver {
	t.Helper()
	r, err := metadata.NewResolver(itemType, reflect.TypeOf(Circle{}), reflect.TypeOf(Square{}))
	require.NoError(t, err)
	return r
}

func parseFilter(t *testing.T, text string, root reflect.Type) (*expr.Lambda, error) {
	t.Helper()
	node, err := ast.NewBuilder(0).Parse(text)
	require.NoError(t, err, text)
	return Filter(node, root, newResolver(t))
}

func sample() Item {
	return Item{
		ID:         7,
		Jalla:      "What",
		Price:      2.5,
		Amount:     decimal.RequireFromString("1.75"),
		Status:     "Active",
		SomeList:   []Sub{{SomeString: "lalala", Total: 12}, {SomeString: "x", Total: 3}},
		Tags:       []string{"a", "b"},
		Attributes: map[string]string{"color": "red", "not an ident": "x"},
		Created:    time.Date(2012, 10, 22, 5, 32, 45, 0, time.UTC),
		Key:        uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
	}
}

func TestFilterEvaluates(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"jalla eq 'What'", true},
		{"jalla ne 'What'", false},
		{"id gt 5", true},
		{"id gt 5L", true},
		{"id add 1 eq 8", true},
		{"id mod 2 eq 1", true},
		{"price ge 2", true},
		{"price mul 2 eq 5.0", true},
		{"amount gt 1.5m", true},
		{"amount lt 1", false},
		{"status eq 'Active'", true},
		{"not (status eq 'Active')", false},
		{"created eq datetime'2012-10-22T05:32:45Z'", true},
		{"created lt datetime'2013-01-01'", true},
		{"key eq guid'6ba7b810-9dad-11d1-80b4-00c04fd430c8'", true},
		{"parent eq null", true},
		{"parent.jalla eq ''", true},
		{"substringof('ha', jalla)", true},
		{"startswith(jalla, 'Wh')", true},
		{"endswith(jalla, 'at')", true},
		{"tolower(jalla) eq 'what'", true},
		{"jalla.toupper() eq 'WHAT'", true},
		{"length(jalla) eq 4", true},
		{"indexof(jalla, 'a') eq 2", true},
		{"concat(jalla, '!') eq 'What!'", true},
		{"someList.any(y:y.someString eq 'lalala')", true},
		{"someList.any()", true},
		{"someList.all(y:y.total gt 5)", false},
		{"someList.count(s:s.total gt 10) eq 1", true},
		{"count(someList) eq 2", true},
		{"someList.sum(s:s.total) eq 15.0", true},
		{"someList.max(s:s.total) gt 10", true},
		{"someList.where(s:s.total lt 5).any()", true},
		{"someList.take(1).count() eq 1", true},
		{"someList.firstdefault(s:s.total lt 5).someString eq 'x'", true},
		{"tags.contains('b')", true},
		{"attributes.color eq 'red'", true},
		{"attributes.get('not an ident') eq 'x'", true},
		{"attributes['color'] eq 'red'", true},
		{"tags[0] eq 'a'", true},
		{"jalla eq 'What' and (id lt 0 or price gt 1)", true},
		{"this.jalla eq 'What'", true},
	}

	item := sample()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			l, err := parseFilter(t, tt.text, itemType)
			require.NoError(t, err)
			got, err := l.Compile()(item)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterShape(t *testing.T) {
	l, err := parseFilter(t, "jalla eq 'What'", itemType)
	require.NoError(t, err)
	require.Len(t, l.Params, 1)
	assert.Equal(t, RootName, l.Params[0].Name)

	b, ok := l.Body.(*expr.Binary)
	require.True(t, ok)
	assert.Equal(t, expr.OpEqual, b.Op)
	m, ok := b.Left.(*expr.Member)
	require.True(t, ok)
	assert.Equal(t, "Jalla", m.Field.Name)
	assert.Same(t, l.Params[0], m.Object)
	assert.Equal(t, "What", b.Right.(*expr.Constant).Value)
}

func TestLiteralTypes(t *testing.T) {
	r := newResolver(t)
	root := expr.NewParameter(RootName, itemType)
	tests := []struct {
		text string
		want reflect.Type
	}{
		{"5", expr.Int32Type},
		{"5000000000", expr.Int64Type},
		{"5L", expr.Int64Type},
		{"1.5", expr.Float64Type},
		{"1.5f", expr.Float32Type},
		{"1.5m", expr.DecimalType},
		{"'x'", expr.StringType},
		{"guid'6ba7b810-9dad-11d1-80b4-00c04fd430c8'", expr.UUIDType},
		{"datetime'2012-10-22'", expr.TimeType},
		{"[1, 2]", reflect.TypeOf([]int32(nil))},
		{"[1, 'a']", expr.TupleType},
		{"null", expr.AnyType},
	}
	for _, tt := range tests {
		node, err := ast.NewBuilder(0).Parse(tt.text)
		require.NoError(t, err, tt.text)
		e, err := Parse(node, root, r)
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.want, e.Type(), tt.text)
	}
}

func TestTypeFunctions(t *testing.T) {
	shape := reflect.TypeOf((*Shape)(nil)).Elem()

	l, err := parseFilter(t, "isof(Circle)", shape)
	require.NoError(t, err)
	is := l.Compile()
	got, err := is(Circle{R: 1})
	require.NoError(t, err)
	assert.Equal(t, true, got)
	got, err = is(Square{S: 1})
	require.NoError(t, err)
	assert.Equal(t, false, got)

	l, err = parseFilter(t, "cast(Circle).r eq 2", shape)
	require.NoError(t, err)
	got, err = l.Compile()(Circle{R: 2})
	require.NoError(t, err)
	assert.Equal(t, true, got)

	l, err = parseFilter(t, "cast(price, 'int32') eq 2", itemType)
	require.NoError(t, err)
	got, err = l.Compile()(sample())
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestSelect(t *testing.T) {
	r := newResolver(t)

	items, err := ast.NewBuilder(0).ParseList("jalla as this")
	require.NoError(t, err)
	l, err := Select(items, itemType, r)
	require.NoError(t, err)
	assert.Equal(t, expr.StringType, l.ReturnType())

	items, err = ast.NewBuilder(0).ParseList("id, jalla")
	require.NoError(t, err)
	l, err = Select(items, itemType, r)
	require.NoError(t, err)
	got, err := l.Compile()(sample())
	require.NoError(t, err)
	assert.Equal(t, []any{7, "What"}, got)

	items, err = ast.NewBuilder(0).ParseList("jalla as name")
	require.NoError(t, err)
	_, err = Select(items, itemType, r)
	assert.ErrorIs(t, err, qerrors.ErrUnsupportedOperator)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		text string
		want error
	}{
		{"missing eq 1", qerrors.ErrUnresolvedSymbol},
		{"frobnicate(jalla)", qerrors.ErrUnresolvedSymbol},
		{"jalla.frobnicate()", qerrors.ErrUnresolvedSymbol},
		{"binary'AQID' eq jalla", qerrors.ErrUnresolvedSymbol},
		{"isof(Unknown)", qerrors.ErrUnresolvedSymbol},
		{"jalla eq 1", qerrors.ErrUnsupportedOperator},
		{"jalla add 1 eq 'x'", qerrors.ErrUnsupportedOperator},
		{"jalla", qerrors.ErrUnsupportedOperator},
		{"not jalla", qerrors.ErrUnsupportedOperator},
		{"someList.where(1)", qerrors.ErrUnsupportedOperator},
		{"someList.any(y:y.total) ", qerrors.ErrUnsupportedOperator},
		{"startswith(jalla)", qerrors.ErrUnsupportedOperator},
		{"tags[0, 1] eq 'a'", qerrors.ErrUnsupportedOperator},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := parseFilter(t, tt.text, itemType)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLambdaScopes(t *testing.T) {
	type Inner struct{ Values []int }
	type Outer struct {
		Limit int
		Items []Inner
	}
	r, err := metadata.NewResolver()
	require.NoError(t, err)

	node, err := ast.NewBuilder(0).Parse("items.any(i:i.values.any(v:v gt limit))")
	require.NoError(t, err)
	l, err := Filter(node, reflect.TypeOf(Outer{}), r)
	require.NoError(t, err)

	got, err := l.Compile()(Outer{Limit: 3, Items: []Inner{{Values: []int{1, 2}}, {Values: []int{4}}}})
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = l.Compile()(Outer{Limit: 9, Items: []Inner{{Values: []int{4}}}})
	require.NoError(t, err)
	assert.Equal(t, false, got)
}
