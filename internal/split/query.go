package split

import (
	"fmt"
	"reflect"

	"github.com/nlstn/go-querytext/expr"
	"github.com/nlstn/go-querytext/internal/qerrors"
	"github.com/nlstn/go-querytext/queryshape"
)

// RowsName is the parameter name of a QueryPlan residual.
const RowsName = "rows"

// QueryPlan is a query chain split into a remote request and a local remainder.
//
// The remote side reads Root, keeps the rows matching Filter, projects them with
// Select, then applies Skip and Take. The rows it returns have type RowType and are
// passed as a slice to Residual, which computes the value of the original query.
type QueryPlan struct {
	Root *expr.QueryRoot
	// Filter is nil when every row is requested.
	Filter *expr.Lambda
	// Select is nil when rows are returned whole. A projection that could only be
	// sent in part is a tuple of slots and RowType is []any.
	Select     *expr.Lambda
	Skip, Take *int
	RowType    reflect.Type
	Residual   *expr.Lambda
}

// SplitQuery splits a query over a single expr.QueryRoot. q is a chain of query
// shapes, optionally ending in further sequence calls such as Count or Any, which
// always run locally.
func (b *Builder) SplitQuery(q expr.Expr) (*QueryPlan, error) {
	root, err := singleRoot(q)
	if err != nil {
		return nil, err
	}

	var terminals []*expr.Call
	var top queryshape.Node
	for cur := q; ; {
		if n, ok := b.registry.Wrap(cur); ok {
			top = n
			break
		}
		if cur == expr.Expr(root) {
			top = queryshape.NewRoot(cur)
			break
		}
		call, ok := cur.(*expr.Call)
		if !ok || len(call.Args) == 0 {
			return nil, qerrors.SplitImpossible("%s does not read from query root %s", cur, root.Name)
		}
		terminals = append(terminals, call)
		cur = call.Args[0]
	}

	// chain runs from the outermost shape down to the root.
	var chain []queryshape.Node
	n := top
	for ; n.Kind() != queryshape.KindRoot; n = n.Source() {
		chain = append(chain, n)
	}
	if n.Expr() != expr.Expr(root) {
		return nil, qerrors.SplitImpossible("query source %s is not query root %s", n.Expr(), root.Name)
	}

	plan := &QueryPlan{Root: root, RowType: n.ElementType()}
	boundary, local, filters, err := b.remotePrefix(plan, chain, n)
	if err != nil {
		return nil, err
	}
	if len(filters) > 0 {
		if plan.Filter, err = joinFilters(filters); err != nil {
			return nil, err
		}
	}

	rows := expr.NewParameter(RowsName, reflect.SliceOf(plan.RowType))
	var replacement expr.Expr = rows
	if local != nil {
		if replacement, err = expr.Select(rows, local); err != nil {
			return nil, fmt.Errorf("building local projection: %w", err)
		}
	}

	var visit func(queryshape.Node) (queryshape.Node, error)
	visit = func(n queryshape.Node) (queryshape.Node, error) {
		if n == boundary {
			return queryshape.NewRoot(replacement), nil
		}
		return n.VisitChildren(queryshape.Funcs{Shape: visit})
	}
	rebuilt, err := visit(top)
	if err != nil {
		return nil, err
	}

	body := rebuilt.Reduce()
	for i := len(terminals) - 1; i >= 0; i-- {
		args := append([]expr.Expr{body}, terminals[i].Args[1:]...)
		if body, err = expr.Rebuild(terminals[i], args); err != nil {
			return nil, fmt.Errorf("rebuilding %s: %w", terminals[i].Method, err)
		}
	}
	plan.Residual = expr.NewLambda(body, rows)
	return plan, nil
}

// remotePrefix walks chain from the root outwards and records in plan the shapes
// that can run remotely. It returns the outermost remote node, the remote filters
// and, when a projection was split, its residual selector.
func (b *Builder) remotePrefix(plan *QueryPlan, chain []queryshape.Node, root queryshape.Node) (queryshape.Node, *expr.Lambda, []*expr.Lambda, error) {
	boundary := root
	var filters []*expr.Lambda
	for i := len(chain) - 1; i >= 0; i-- {
		switch n := chain[i].(type) {
		case *queryshape.Where:
			if plan.Select != nil || plan.Skip != nil || plan.Take != nil || !b.renders(n.Predicate()) {
				return boundary, nil, filters, nil
			}
			filters = append(filters, n.Predicate())
		case *queryshape.Skip:
			v, ok := n.Value()
			if !ok || plan.Skip != nil || plan.Take != nil {
				return boundary, nil, filters, nil
			}
			plan.Skip = &v
		case *queryshape.Take:
			v, ok := n.Value()
			if !ok || plan.Take != nil {
				return boundary, nil, filters, nil
			}
			plan.Take = &v
		case *queryshape.Select:
			if plan.Select != nil {
				return boundary, nil, filters, nil
			}
			sel := n.Selector()
			if b.renders(sel) {
				plan.Select = sel
				plan.RowType = sel.ReturnType()
				break
			}
			res, err := b.Split(sel)
			if err != nil {
				return nil, nil, nil, err
			}
			plan.Select = res.Remote
			plan.RowType = expr.TupleType
			return n, res.Residual, filters, nil
		default:
			return boundary, nil, filters, nil
		}
		boundary = chain[i]
	}
	return boundary, nil, filters, nil
}

func (b *Builder) renders(l *expr.Lambda) bool {
	_, err := b.enc.Render(l)
	return err == nil
}

// singleRoot returns the only query root q reads from.
func singleRoot(q expr.Expr) (*expr.QueryRoot, error) {
	var roots []*expr.QueryRoot
	expr.Inspect(q, func(e expr.Expr) bool {
		r, ok := e.(*expr.QueryRoot)
		if !ok {
			return true
		}
		for _, seen := range roots {
			if seen.Name == r.Name {
				return false
			}
		}
		roots = append(roots, r)
		return false
	})
	switch len(roots) {
	case 0:
		return nil, qerrors.SplitImpossible("%s reads from no query root", q)
	case 1:
		return roots[0], nil
	}
	return nil, qerrors.SplitImpossible("multiple combined queryable sources: %s and %s", roots[0].Name, roots[1].Name)
}

// joinFilters combines predicates with and, rebinding each to the first parameter.
func joinFilters(filters []*expr.Lambda) (*expr.Lambda, error) {
	p := filters[0].Params[0]
	body := filters[0].Body
	for _, f := range filters[1:] {
		next, err := substitute(f.Body, f.Params[0], p)
		if err != nil {
			return nil, fmt.Errorf("joining filters: %w", err)
		}
		if body, err = expr.NewBinary(expr.OpAnd, body, next); err != nil {
			return nil, fmt.Errorf("joining filters: %w", err)
		}
	}
	return expr.NewLambda(body, p), nil
}

func substitute(e expr.Expr, from *expr.Parameter, to expr.Expr) (expr.Expr, error) {
	if e == expr.Expr(from) {
		return to, nil
	}
	children := expr.Children(e)
	if len(children) == 0 {
		return e, nil
	}
	next := make([]expr.Expr, len(children))
	for i, c := range children {
		r, err := substitute(c, from, to)
		if err != nil {
			return nil, err
		}
		next[i] = r
	}
	return expr.Rebuild(e, next)
}
