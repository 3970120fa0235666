package queryshape

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlstn/go-querytext/expr"
)

type order struct {
	ID    int32
	Total float64
	Tags  []string
}

var orderType = reflect.TypeOf(order{})

type fixture struct {
	root  *expr.QueryRoot
	o     *expr.Parameter
	where *expr.Call
	sel   *expr.Call
	take  *expr.Call
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := expr.NewQueryRoot("orders", orderType)
	o := expr.NewParameter("o", orderType)
	total, err := expr.Field(o, "Total")
	require.NoError(t, err)
	big, err := expr.NewBinary(expr.OpGreaterThan, total, expr.NewConstant(10.0))
	require.NoError(t, err)
	where, err := expr.Where(root, expr.NewLambda(big, o))
	require.NoError(t, err)
	id, err := expr.Field(o, "ID")
	require.NoError(t, err)
	sel, err := expr.Select(where, expr.NewLambda(id, o))
	require.NoError(t, err)
	take, err := expr.Take(sel, 5)
	require.NoError(t, err)
	return fixture{root: root, o: o, where: where, sel: sel, take: take}
}

func TestWrapChain(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()

	n, ok := r.Wrap(f.take)
	require.True(t, ok)
	take, ok := n.(*Take)
	require.True(t, ok)
	v, ok := take.Value()
	assert.True(t, ok)
	assert.Equal(t, 5, v)
	assert.Equal(t, reflect.TypeOf(int32(0)), take.ElementType())

	sel, ok := take.Source().(*Select)
	require.True(t, ok)
	assert.Same(t, f.sel, sel.Expr())
	assert.Same(t, sel, take.Source(), "source is wrapped once")

	where, ok := sel.Source().(*Where)
	require.True(t, ok)
	assert.Same(t, f.where.Args[1], where.Predicate())
	assert.Equal(t, orderType, where.ElementType())

	root, ok := where.Source().(*Root)
	require.True(t, ok)
	assert.Same(t, f.root, root.Expr())
	assert.Nil(t, root.Source())
	assert.Equal(t, KindRoot, root.Kind())

	assert.Same(t, f.take, take.Reduce())
}

func TestWrapRejectsNonShapes(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()

	_, ok := r.Wrap(f.root)
	assert.False(t, ok)

	count, err := expr.Count(f.root, nil)
	require.NoError(t, err)
	_, ok = r.Wrap(count)
	assert.False(t, ok)
}

func TestBuildValidates(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()

	_, err := r.Build(KindSelect, f.where, nil)
	assert.Error(t, err, "method identity")

	_, err = r.Build(KindWhere, f.where, NewRoot(expr.NewQueryRoot("orders", orderType)))
	assert.Error(t, err, "source must be the identical node")

	n, err := r.Build(KindWhere, f.where, NewRoot(f.root))
	require.NoError(t, err)
	assert.Equal(t, KindWhere, n.Kind())

	_, err = r.Build(Kind(99), f.where, nil)
	assert.Error(t, err)
}

func TestVisitChildrenIdempotent(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()

	for _, e := range []expr.Expr{f.where, f.sel, f.take} {
		n, ok := r.Wrap(e)
		require.True(t, ok)
		same, err := n.VisitChildren(Nop)
		require.NoError(t, err)
		assert.Same(t, n, same, n.Kind().String())
	}

	root := NewRoot(f.root)
	same, err := root.VisitChildren(Nop)
	require.NoError(t, err)
	assert.Same(t, root, same)
}

func TestVisitChildrenRebuilds(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	n, ok := r.Wrap(f.take)
	require.True(t, ok)

	rewritten, err := n.VisitChildren(Funcs{Expr: func(e expr.Expr) (expr.Expr, error) {
		if c, ok := e.(*expr.Constant); ok && c.Value == int32(5) {
			return expr.NewConstant(int32(2)), nil
		}
		return e, nil
	}})
	require.NoError(t, err)
	require.NotSame(t, n, rewritten)
	v, ok := rewritten.(*Take).Value()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Same(t, n.Source(), rewritten.Source(), "unchanged source is kept")

	swapped := NewRoot(expr.NewQueryRoot("archive", orderType))
	where, ok := r.Wrap(f.where)
	require.True(t, ok)
	moved, err := where.VisitChildren(Funcs{Shape: func(Node) (Node, error) { return swapped, nil }})
	require.NoError(t, err)
	assert.Same(t, swapped, moved.Source())
	assert.Same(t, where.(*Where).Predicate(), moved.(*Where).Predicate())
}

func TestShapeAccessors(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	id, err := expr.Field(f.o, "ID")
	require.NoError(t, err)
	tags, err := expr.Field(f.o, "Tags")
	require.NoError(t, err)

	grouped, err := expr.GroupBy(f.root, expr.NewLambda(id, f.o))
	require.NoError(t, err)
	n, ok := r.Wrap(grouped)
	require.True(t, ok)
	assert.NotNil(t, n.(*GroupBy).KeySelector())
	assert.Nil(t, n.(*GroupBy).ElementSelector())
	assert.Equal(t, expr.GroupType, n.ElementType())

	many, err := expr.SelectMany(f.root, expr.NewLambda(tags, f.o))
	require.NoError(t, err)
	n, ok = r.Wrap(many)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(""), n.ElementType())
	assert.NotNil(t, n.(*SelectMany).Selector())

	anys := expr.NewConstant([]any{order{}, 1})
	typed, err := expr.OfType(anys, orderType)
	require.NoError(t, err)
	n, ok = r.Wrap(typed)
	require.True(t, ok)
	assert.Equal(t, orderType, n.(*OfType).TargetType())

	padded, err := expr.DefaultIfEmpty(f.root)
	require.NoError(t, err)
	n, ok = r.Wrap(padded)
	require.True(t, ok)
	assert.Nil(t, n.(*DefaultIfEmpty).DefaultValue())

	a := expr.NewParameter("a", orderType)
	b := expr.NewParameter("b", orderType)
	second := expr.NewQueryRoot("archive", orderType)
	zipped, err := expr.Zip(f.root, second, expr.NewLambda(a, a, b))
	require.NoError(t, err)
	n, ok = r.Wrap(zipped)
	require.True(t, ok)
	assert.Same(t, second, n.(*Zip).Second())
	assert.NotNil(t, n.(*Zip).ResultSelector())
	same, err := n.VisitChildren(Nop)
	require.NoError(t, err)
	assert.Same(t, n, same)

	distinct, err := expr.Distinct(f.sel)
	require.NoError(t, err)
	n, ok = r.Wrap(distinct)
	require.True(t, ok)
	assert.Equal(t, "Distinct", n.Kind().String())

	assert.Len(t, r.Kinds(), 10)
}
