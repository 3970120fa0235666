package expr

import (
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// Children returns the direct operands of e in evaluation order. Lambda parameters
// are not children; the body is.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case *Member:
		return []Expr{n.Object}
	case *Binary:
		return []Expr{n.Left, n.Right}
	case *Unary:
		return []Expr{n.Operand}
	case *TypeIs:
		return []Expr{n.Operand}
	case *Call:
		return n.Args
	case *Lambda:
		return []Expr{n.Body}
	case *Index:
		return []Expr{n.Object, n.Key}
	case *NewArray:
		return n.Elems
	}
	return nil
}

// Rebuild returns a copy of e with its children replaced. When every child is
// identical to the current one, e itself is returned.
func Rebuild(e Expr, children []Expr) (Expr, error) {
	old := Children(e)
	if len(old) != len(children) {
		return nil, fmt.Errorf("%s takes %d children, got %d", e.Kind(), len(old), len(children))
	}
	changed := false
	for i := range old {
		if old[i] != children[i] {
			changed = true
			break
		}
	}
	if !changed {
		return e, nil
	}
	switch n := e.(type) {
	case *Member:
		return &Member{Object: children[0], Field: n.Field}, nil
	case *Binary:
		l, r := children[0], children[1]
		if !n.Op.IsLogical() && l.Type() != r.Type() {
			var err error
			if l, r, err = Coerce(l, r); err != nil {
				return nil, err
			}
		}
		return NewBinary(n.Op, l, r)
	case *Unary:
		switch n.Op {
		case OpNot:
			return Not(children[0])
		case OpNegate:
			return Negate(children[0])
		}
		return Convert(children[0], n.typ)
	case *TypeIs:
		return &TypeIs{Operand: children[0], Target: n.Target}, nil
	case *Call:
		return NewCall(n.Method, children...)
	case *Lambda:
		return NewLambda(children[0], n.Params...), nil
	case *Index:
		return NewIndex(children[0], children[1])
	case *NewArray:
		return NewArrayOf(n.typ.Elem(), children...)
	}
	return e, nil
}

// Inspect walks e depth-first, calling fn before visiting children. Returning false
// from fn skips the node's children.
func Inspect(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Inspect(c, fn)
	}
}

// FreeParameters returns the parameters referenced by e that e does not bind itself.
func FreeParameters(e Expr) map[*Parameter]struct{} {
	free := make(map[*Parameter]struct{})
	collectFree(e, nil, free)
	return free
}

func collectFree(e Expr, bound map[*Parameter]bool, free map[*Parameter]struct{}) {
	switch n := e.(type) {
	case *Parameter:
		if !bound[n] {
			free[n] = struct{}{}
		}
		return
	case *Lambda:
		inner := make(map[*Parameter]bool, len(bound)+len(n.Params))
		for p := range bound {
			inner[p] = true
		}
		for _, p := range n.Params {
			inner[p] = true
		}
		collectFree(n.Body, inner, free)
		return
	}
	for _, c := range Children(e) {
		collectFree(c, bound, free)
	}
}

// IsClosed reports whether e references no free parameters and no query roots, so
// that it can be evaluated without an environment.
func IsClosed(e Expr) bool {
	closed := len(FreeParameters(e)) == 0
	Inspect(e, func(n Expr) bool {
		if n.Kind() == KindQueryRoot {
			closed = false
		}
		return closed
	})
	return closed
}

// StructuralEqual reports whether a and b denote the same computation. Parameters
// compare by identity except that lambda parameters at the same binding position are
// considered equal.
func StructuralEqual(a, b Expr) bool {
	return structuralEqual(a, b, nil)
}

func structuralEqual(a, b Expr, alias map[*Parameter]*Parameter) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind() != b.Kind() || a.Type() != b.Type() {
		return false
	}
	switch x := a.(type) {
	case *Constant:
		y := b.(*Constant)
		return reflect.DeepEqual(x.Value, y.Value)
	case *Parameter:
		y := b.(*Parameter)
		if m, ok := alias[x]; ok {
			return m == y
		}
		return x == y
	case *QueryRoot:
		return x.Name == b.(*QueryRoot).Name
	case *Member:
		y := b.(*Member)
		if !equalIndex(x.Field.Index, y.Field.Index) {
			return false
		}
	case *Binary:
		if x.Op != b.(*Binary).Op {
			return false
		}
	case *Unary:
		if x.Op != b.(*Unary).Op {
			return false
		}
	case *TypeIs:
		if x.Target != b.(*TypeIs).Target {
			return false
		}
	case *Call:
		if x.Method != b.(*Call).Method {
			return false
		}
	case *Lambda:
		y := b.(*Lambda)
		if len(x.Params) != len(y.Params) {
			return false
		}
		inner := make(map[*Parameter]*Parameter, len(alias)+len(x.Params))
		for k, v := range alias {
			inner[k] = v
		}
		for i, p := range x.Params {
			inner[p] = y.Params[i]
		}
		return structuralEqual(x.Body, y.Body, inner)
	}
	ca, cb := Children(a), Children(b)
	if len(ca) != len(cb) {
		return false
	}
	for i := range ca {
		if !structuralEqual(ca[i], cb[i], alias) {
			return false
		}
	}
	return true
}

func equalIndex(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Hash returns a structural fingerprint of e: structurally equal expressions hash
// equally. Lambda parameters are hashed by binding position, free parameters by name.
func Hash(e Expr) uint64 {
	d := xxhash.New()
	writeFingerprint(d, e, nil)
	return d.Sum64()
}

func writeFingerprint(d *xxhash.Digest, e Expr, depth map[*Parameter]int) {
	fmt.Fprintf(d, "(%d:%s", e.Kind(), e.Type())
	switch n := e.(type) {
	case *Constant:
		fmt.Fprintf(d, "=%#v", n.Value)
	case *Parameter:
		if i, ok := depth[n]; ok {
			fmt.Fprintf(d, "#%d", i)
		} else {
			_, _ = d.WriteString("$" + n.Name)
		}
	case *QueryRoot:
		_, _ = d.WriteString("@" + n.Name)
	case *Member:
		fmt.Fprintf(d, ".%v", n.Field.Index)
	case *Binary:
		fmt.Fprintf(d, "%d", n.Op)
	case *Unary:
		fmt.Fprintf(d, "%d", n.Op)
	case *TypeIs:
		_, _ = d.WriteString(n.Target.String())
	case *Call:
		_, _ = d.WriteString(n.Method.Name)
	case *Lambda:
		inner := make(map[*Parameter]int, len(depth)+len(n.Params))
		for k, v := range depth {
			inner[k] = v
		}
		for _, p := range n.Params {
			inner[p] = len(inner)
		}
		writeFingerprint(d, n.Body, inner)
		_, _ = d.WriteString(")")
		return
	}
	for _, c := range Children(e) {
		writeFingerprint(d, c, depth)
	}
	_, _ = d.WriteString(")")
}
