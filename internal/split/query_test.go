package split

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlstn/go-querytext/expr"
	"github.com/nlstn/go-querytext/internal/qerrors"
	"github.com/nlstn/go-querytext/internal/render"
)

func renderLambda(t *testing.T, l *expr.Lambda) string {
	t.Helper()
	require.NotNil(t, l)
	s, err := render.New().Render(l)
	require.NoError(t, err)
	return s
}

func TestSplitQueryFullyRemote(t *testing.T) {
	root := expr.NewQueryRoot("orders", orderType)
	o := expr.NewParameter("o", orderType)
	p := expr.NewParameter("p", orderType)

	q, err := expr.Where(root, expr.NewLambda(binary(t, expr.OpGreaterThan, field(t, o, "Total"), expr.NewConstant(10.0)), o))
	require.NoError(t, err)
	q, err = expr.Where(q, expr.NewLambda(binary(t, expr.OpNotEqual, field(t, p, "Name"), expr.NewConstant("")), p))
	require.NoError(t, err)
	q, err = expr.Select(q, expr.NewLambda(field(t, o, "ID"), o))
	require.NoError(t, err)
	q, err = expr.Skip(q, 2)
	require.NoError(t, err)
	q, err = expr.Take(q, 5)
	require.NoError(t, err)

	plan, err := NewBuilder(nil, nil).SplitQuery(q)
	require.NoError(t, err)
	assert.Same(t, root, plan.Root)
	assert.Equal(t, "total gt 10.0 and name ne ''", renderLambda(t, plan.Filter))
	assert.Equal(t, "id", renderLambda(t, plan.Select))
	require.NotNil(t, plan.Skip)
	require.NotNil(t, plan.Take)
	assert.Equal(t, 2, *plan.Skip)
	assert.Equal(t, 5, *plan.Take)
	assert.Equal(t, expr.Int32Type, plan.RowType)
	assert.Same(t, plan.Residual.Params[0], plan.Residual.Body)

	out, err := plan.Residual.Compile()([]int32{3, 4})
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 4}, out)
}

func TestSplitQueryLocalFilterAfterPaging(t *testing.T) {
	root := expr.NewQueryRoot("orders", orderType)
	o := expr.NewParameter("o", orderType)

	q, err := expr.Take(root, 5)
	require.NoError(t, err)
	q, err = expr.Where(q, expr.NewLambda(call(t, known, field(t, o, "Name")), o))
	require.NoError(t, err)

	plan, err := NewBuilder(nil, nil).SplitQuery(q)
	require.NoError(t, err)
	assert.Nil(t, plan.Filter)
	assert.Nil(t, plan.Select)
	assert.Nil(t, plan.Skip)
	require.NotNil(t, plan.Take)
	assert.Equal(t, 5, *plan.Take)
	assert.Equal(t, orderType, plan.RowType)

	out, err := plan.Residual.Compile()([]order{{ID: 1, Name: "k"}, {ID: 2, Name: "x"}})
	require.NoError(t, err)
	assert.Equal(t, []order{{ID: 1, Name: "k"}}, out)
}

func TestSplitQueryPartialProjection(t *testing.T) {
	root := expr.NewQueryRoot("orders", orderType)
	o := expr.NewParameter("o", orderType)

	q, err := expr.Where(root, expr.NewLambda(binary(t, expr.OpGreaterThan, field(t, o, "Total"), expr.NewConstant(10.0)), o))
	require.NoError(t, err)
	q, err = expr.Select(q, expr.NewLambda(call(t, shout, field(t, o, "Name")), o))
	require.NoError(t, err)

	plan, err := NewBuilder(nil, nil).SplitQuery(q)
	require.NoError(t, err)
	assert.Equal(t, "total gt 10.0", renderLambda(t, plan.Filter))
	sel, err := render.New().RenderSelect(plan.Select)
	require.NoError(t, err)
	assert.Equal(t, "[name] as this", sel)
	assert.Equal(t, expr.TupleType, plan.RowType)

	out, err := plan.Residual.Compile()([][]any{{"a"}, {"b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, out)
}

func TestSplitQueryTerminalRunsLocally(t *testing.T) {
	root := expr.NewQueryRoot("orders", orderType)
	o := expr.NewParameter("o", orderType)

	where, err := expr.Where(root, expr.NewLambda(binary(t, expr.OpGreaterThan, field(t, o, "Total"), expr.NewConstant(10.0)), o))
	require.NoError(t, err)
	q, err := expr.Count(where, nil)
	require.NoError(t, err)

	plan, err := NewBuilder(nil, nil).SplitQuery(q)
	require.NoError(t, err)
	assert.Equal(t, "total gt 10.0", renderLambda(t, plan.Filter))

	out, err := plan.Residual.Compile()([]order{{}, {}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), out)
}

func TestSplitQueryRootOnly(t *testing.T) {
	root := expr.NewQueryRoot("orders", orderType)
	plan, err := NewBuilder(nil, nil).SplitQuery(root)
	require.NoError(t, err)
	assert.Nil(t, plan.Filter)
	assert.Equal(t, orderType, plan.RowType)
	assert.Same(t, plan.Residual.Params[0], plan.Residual.Body)
}

func TestSplitQueryRejectsMultipleSources(t *testing.T) {
	a := expr.NewParameter("a", orderType)
	b := expr.NewParameter("b", orderType)
	q, err := expr.Zip(expr.NewQueryRoot("orders", orderType), expr.NewQueryRoot("archive", orderType), expr.NewLambda(a, a, b))
	require.NoError(t, err)

	_, err = NewBuilder(nil, nil).SplitQuery(q)
	require.ErrorIs(t, err, qerrors.ErrSplitImpossible)
	assert.Contains(t, err.Error(), "multiple combined queryable sources")
}

func TestSplitQueryRequiresQueryRoot(t *testing.T) {
	o := expr.NewParameter("o", orderType)
	q, err := expr.Where(expr.NewConstant([]order{}), expr.NewLambda(expr.NewConstant(true), o))
	require.NoError(t, err)

	_, err = NewBuilder(nil, nil).SplitQuery(q)
	assert.ErrorIs(t, err, qerrors.ErrSplitImpossible)
}
