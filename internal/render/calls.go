package render

import (
	"strings"

	"github.com/nlstn/go-querytext/expr"
	"github.com/nlstn/go-querytext/internal/qerrors"
)

type callFunc func(w *writer, args []expr.Expr) (string, int, error)

// methods maps the built-in methods to their text form. String methods are written
// as root level functions, sequence methods as dotted calls on their source. The
// table is filled in init because its writers call back into render.
var methods map[*expr.Method]callFunc

func init() {
	methods = map[*expr.Method]callFunc{
		expr.MethodContains:   substringOf,
		expr.MethodStartsWith: function("startswith"),
		expr.MethodEndsWith:   function("endswith"),
		expr.MethodToLower:    function("tolower"),
		expr.MethodToUpper:    function("toupper"),
		expr.MethodLength:     function("length"),
		expr.MethodTrim:       function("trim"),
		expr.MethodConcat:     function("concat"),
		expr.MethodIndexOf:    function("indexof"),

		expr.MethodAny:              dotted("any"),
		expr.MethodAll:              dotted("all"),
		expr.MethodCount:            count,
		expr.MethodWhere:            dotted("where"),
		expr.MethodSelect:           dotted("select"),
		expr.MethodSum:              dotted("sum"),
		expr.MethodMin:              dotted("min"),
		expr.MethodMax:              dotted("max"),
		expr.MethodAverage:          dotted("average"),
		expr.MethodFirst:            dotted("first"),
		expr.MethodFirstOrDefault:   dotted("firstdefault"),
		expr.MethodTake:             dotted("take"),
		expr.MethodSkip:             dotted("skip"),
		expr.MethodSequenceContains: dotted("contains"),
	}
}

func (w *writer) call(n *expr.Call) (string, int, error) {
	fn, ok := methods[n.Method]
	if !ok || n.Method.Local {
		return "", 0, qerrors.Unsupported("method %s has no query text form", n.Method.Name)
	}
	return fn(w, n.Args)
}

func function(name string) callFunc {
	return func(w *writer, args []expr.Expr) (string, int, error) {
		s, err := w.list(args)
		if err != nil {
			return "", 0, err
		}
		return name + "(" + s + ")", precPrimary, nil
	}
}

// substringOf writes Contains(haystack, needle) as substringof(needle,haystack).
func substringOf(w *writer, args []expr.Expr) (string, int, error) {
	return function("substringof")(w, []expr.Expr{args[1], args[0]})
}

func count(w *writer, args []expr.Expr) (string, int, error) {
	if len(args) == 1 {
		return function("count")(w, args)
	}
	return dotted("count")(w, args)
}

func dotted(name string) callFunc {
	return func(w *writer, args []expr.Expr) (string, int, error) {
		src, err := w.operand(args[0], precPrimary)
		if err != nil {
			return "", 0, err
		}
		parts := make([]string, 0, len(args)-1)
		for _, a := range args[1:] {
			var s string
			if _, ok := a.(*expr.Lambda); ok {
				s, err = w.lambda(a)
			} else {
				s, err = w.operand(a, precOr)
			}
			if err != nil {
				return "", 0, err
			}
			parts = append(parts, s)
		}
		return src + "." + name + "(" + strings.Join(parts, ",") + ")", precPrimary, nil
	}
}
