package metadata

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlstn/go-querytext/expr"
	"github.com/nlstn/go-querytext/internal/qerrors"
)

type Audit struct {
	CreatedBy string
}

type Customer struct {
	Audit
	ID         int
	Name       string
	URLPath    string
	Nickname   string `query:"alias"`
	Secret     string `query:"-"`
	Orders     []Order
	Attributes map[string]string
	Manager    *Customer
	internal   int
}

type Order struct {
	Total float64
}

func TestLowerCamel(t *testing.T) {
	tests := map[string]string{
		"ID":       "id",
		"Name":     "name",
		"SomeList": "someList",
		"URLPath":  "urlPath",
		"jalla":    "jalla",
		"X":        "x",
	}
	for in, want := range tests {
		assert.Equal(t, want, LowerCamel(in), in)
	}
}

func TestAnalyzeType(t *testing.T) {
	m, err := AnalyzeType(reflect.TypeOf(&Customer{}))
	require.NoError(t, err)
	assert.Equal(t, "Customer", m.Name)

	names := make([]string, len(m.Properties))
	for i, p := range m.Properties {
		names[i] = p.Name
	}
	assert.ElementsMatch(t, []string{"createdBy", "id", "name", "urlPath", "alias", "orders", "attributes", "manager"}, names)

	orders, ok := m.Property("ORDERS")
	require.True(t, ok)
	assert.True(t, orders.IsCollection)

	attrs, ok := m.Property("attributes")
	require.True(t, ok)
	assert.True(t, attrs.IsMap)

	_, ok = m.Property("secret")
	assert.False(t, ok)

	_, err = AnalyzeType(reflect.TypeOf(42))
	assert.Error(t, err)
}

func TestResolverResolveProperty(t *testing.T) {
	r, err := NewResolver(reflect.TypeOf(Customer{}))
	require.NoError(t, err)

	x := expr.NewParameter("x", reflect.TypeOf(Customer{}))

	e, err := r.ResolveProperty(x, "name")
	require.NoError(t, err)
	assert.Equal(t, expr.StringType, e.Type())
	assert.Equal(t, "Name", e.(*expr.Member).Field.Name)

	e, err = r.ResolveProperty(x, "createdBy")
	require.NoError(t, err)
	v, err := expr.Eval(e, expr.NewEnv().Bind([]*expr.Parameter{x}, []any{Customer{Audit: Audit{CreatedBy: "ann"}}}))
	require.NoError(t, err)
	assert.Equal(t, "ann", v)

	manager, err := r.ResolveProperty(x, "manager")
	require.NoError(t, err)
	nested, err := r.ResolveProperty(manager, "name")
	require.NoError(t, err)
	v, err = expr.Eval(nested, expr.NewEnv().Bind([]*expr.Parameter{x}, []any{Customer{}}))
	require.NoError(t, err)
	assert.Equal(t, "", v)

	attrs, err := r.ResolveProperty(x, "attributes")
	require.NoError(t, err)
	lookup, err := r.ResolveProperty(attrs, "color")
	require.NoError(t, err)
	assert.Equal(t, expr.KindIndex, lookup.Kind())
	v, err = expr.Eval(lookup, expr.NewEnv().Bind([]*expr.Parameter{x}, []any{Customer{Attributes: map[string]string{"color": "red"}}}))
	require.NoError(t, err)
	assert.Equal(t, "red", v)

	_, err = r.ResolveProperty(x, "missing")
	assert.ErrorIs(t, err, qerrors.ErrUnresolvedSymbol)

	name, err := r.ResolveProperty(x, "name")
	require.NoError(t, err)
	_, err = r.ResolveProperty(name, "length")
	assert.ErrorIs(t, err, qerrors.ErrUnresolvedSymbol)
}

func TestResolverResolveType(t *testing.T) {
	r, err := NewResolver(reflect.TypeOf(Customer{}))
	require.NoError(t, err)

	typ, err := r.ResolveType("customer")
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(Customer{}), typ)

	typ, err = r.ResolveType("decimal")
	require.NoError(t, err)
	assert.Equal(t, expr.DecimalType, typ)

	_, err = r.ResolveType("Unknown")
	assert.ErrorIs(t, err, qerrors.ErrUnresolvedSymbol)

	assert.Equal(t, "guid", TypeName(expr.UUIDType))
	assert.Equal(t, "Customer", TypeName(reflect.TypeOf(Customer{})))
}

func TestIsIdentifier(t *testing.T) {
	assert.True(t, IsIdentifier("color"))
	assert.True(t, IsIdentifier("_x1"))
	assert.False(t, IsIdentifier("not an ident"))
	assert.False(t, IsIdentifier("1abc"))
	assert.False(t, IsIdentifier("and"))
	assert.False(t, IsIdentifier(""))
}
