package ast

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-querytext/internal/grammar"
	"github.com/nlstn/go-querytext/internal/qerrors"
)

// DefaultMaxDepth bounds the nesting of a built tree.
const DefaultMaxDepth = 128

// localDateTimeLayout is the datetime literal layout for values without a zone.
const localDateTimeLayout = "2006-01-02T15:04:05.999999999"

// mapping describes how a parse production becomes a typed node. skip leading
// children are not argument expressions (a method name, a lambda parameter, an
// indexer target).
type mapping struct {
	typ  NodeType
	skip int
}

// binaryOperators maps binary productions to their node type.
var binaryOperators = map[grammar.Production]NodeType{
	grammar.ProdOr:             Or,
	grammar.ProdAnd:            And,
	grammar.ProdEqual:          Equal,
	grammar.ProdNotEqual:       NotEqual,
	grammar.ProdLessThan:       LessThan,
	grammar.ProdLessOrEqual:    LessOrEqual,
	grammar.ProdGreaterThan:    GreaterThan,
	grammar.ProdGreaterOrEqual: GreaterOrEqual,
	grammar.ProdAdd:            Add,
	grammar.ProdSubtract:       Subtract,
	grammar.ProdMultiply:       Multiply,
	grammar.ProdDivide:         Divide,
	grammar.ProdModulo:         Modulo,
	grammar.ProdDot:            Dot,
	grammar.ProdAs:             As,
}

// structural maps the remaining productions.
var structural = map[grammar.Production]mapping{
	grammar.ProdIdentifier: {typ: Symbol},
	grammar.ProdCall:       {typ: MethodCall, skip: 1},
	grammar.ProdIndexer:    {typ: IndexerAccess, skip: 1},
	grammar.ProdLambda:     {typ: Lambda, skip: 1},
	grammar.ProdArray:      {typ: ArrayLiteral},
	grammar.ProdNot:        {typ: Not},
	grammar.ProdInteger:    {typ: IntLiteral},
	grammar.ProdNumber:     {typ: NumberLiteral},
	grammar.ProdString:     {typ: StringLiteral},
}

// reducible productions are wrappers that disappear when they hold a single child.
var reducible = map[grammar.Production]bool{
	grammar.ProdExpression: true,
	grammar.ProdOr:         true,
	grammar.ProdAnd:        true,
	grammar.ProdParen:      true,
}

// Builder converts grammar parse trees into AST nodes.
type Builder struct {
	maxDepth int
}

// NewBuilder returns a builder rejecting trees nested deeper than maxDepth. A
// non-positive maxDepth selects DefaultMaxDepth.
func NewBuilder(maxDepth int) *Builder {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Builder{maxDepth: maxDepth}
}

// Build converts a parse tree into an AST node.
func (b *Builder) Build(tree *grammar.Node) (Node, error) {
	return b.build(tree, 0)
}

// Parse tokenizes, parses and builds a single expression.
func (b *Builder) Parse(text string) (Node, error) {
	tree, err := grammar.ParseExpression(text)
	if err != nil {
		return nil, err
	}
	return b.Build(tree)
}

// ParseList tokenizes, parses and builds each item of a comma separated list.
func (b *Builder) ParseList(text string) ([]Node, error) {
	tree, err := grammar.ParseList(text)
	if err != nil {
		return nil, err
	}
	items := make([]Node, len(tree.Children))
	for i, c := range tree.Children {
		if items[i], err = b.Build(c); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (b *Builder) build(n *grammar.Node, depth int) (Node, error) {
	if depth > b.maxDepth {
		return nil, qerrors.Syntax(n.Pos(), "expression nesting exceeds maximum depth %d", b.maxDepth)
	}

	if n.Prod == grammar.ProdPrefixed {
		return buildPrefixed(n)
	}

	if reducible[n.Prod] && len(n.Children) == 1 {
		return b.build(n.Children[0], depth)
	}

	if op, ok := binaryOperators[n.Prod]; ok && len(n.Children) >= 2 {
		return b.buildBinary(op, n, depth)
	}

	m, ok := structural[n.Prod]
	if !ok {
		return b.unhandled(n, depth)
	}

	args, err := b.buildChildren(n.Children[min(m.skip, len(n.Children)):], depth)
	if err != nil {
		return nil, err
	}

	switch m.typ {
	case Symbol:
		return &SymbolNode{Name: n.Token.Value}, nil
	case MethodCall:
		return &SymbolNode{Name: n.Children[0].Token.Value, Args: args, HasParens: true}, nil
	case IndexerAccess:
		target, err := b.build(n.Children[0], depth+1)
		if err != nil {
			return nil, err
		}
		return &IndexerNode{Target: target, Args: args}, nil
	case Lambda:
		return &LambdaNode{Param: n.Children[0].Token.Value, Body: args[0]}, nil
	case ArrayLiteral:
		return &ArrayNode{Elems: args}, nil
	case Not:
		return &NotNode{Operand: args[0]}, nil
	case IntLiteral:
		v, err := strconv.ParseInt(n.Token.Value, 10, 64)
		if err != nil {
			return nil, qerrors.SyntaxWrap(n.Token.Pos, err, "invalid integer literal %s", n.Token.Value)
		}
		return &IntLiteralNode{Value: v}, nil
	case NumberLiteral:
		v, err := parseNumber(n.Token.Value)
		if err != nil {
			return nil, qerrors.SyntaxWrap(n.Token.Pos, err, "invalid numeric literal %s", n.Token.Value)
		}
		return &NumberLiteralNode{Text: n.Token.Value, Value: v}, nil
	case StringLiteral:
		return &StringLiteralNode{Value: n.Token.Value}, nil
	}
	return b.unhandled(n, depth)
}

func (b *Builder) buildChildren(children []*grammar.Node, depth int) ([]Node, error) {
	out := make([]Node, 0, len(children))
	for _, c := range children {
		node, err := b.build(c, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

// buildBinary drains the parsed operands from a queue into left associative pairs.
func (b *Builder) buildBinary(op NodeType, n *grammar.Node, depth int) (Node, error) {
	queue, err := b.buildChildren(n.Children, depth)
	if err != nil {
		return nil, err
	}
	left := queue[0]
	queue = queue[1:]
	for len(queue) > 0 {
		left = &BinaryNode{Op: op, Left: left, Right: queue[0]}
		queue = queue[1:]
	}
	return left, nil
}

func (b *Builder) unhandled(n *grammar.Node, depth int) (Node, error) {
	children, err := b.buildChildren(n.Children, depth)
	if err != nil {
		return nil, err
	}
	u := &UnhandledNode{Kind: n.Prod.String(), Pos: n.Pos(), Elements: children}
	if n.Token != nil {
		u.Text = n.Token.Value
	}
	return u, nil
}

// buildPrefixed turns a prefixed literal into a typed literal. Malformed bodies are
// syntax errors; unknown prefixes are left unhandled.
func buildPrefixed(n *grammar.Node) (Node, error) {
	tok := n.Token
	switch tok.Prefix {
	case "guid":
		v, err := uuid.Parse(tok.Value)
		if err != nil {
			return nil, qerrors.SyntaxWrap(tok.Pos, err, "malformed guid literal '%s'", tok.Value)
		}
		return &GuidLiteralNode{Value: v}, nil
	case "datetime":
		v, err := ParseDateTime(tok.Value)
		if err != nil {
			return nil, qerrors.SyntaxWrap(tok.Pos, err, "malformed datetime literal '%s'", tok.Value)
		}
		return &DateTimeLiteralNode{Value: v}, nil
	}
	return &UnhandledNode{Kind: tok.Prefix, Text: tok.Value, Pos: tok.Pos}, nil
}

// ParseDateTime parses the body of a datetime literal. A trailing Z or an explicit
// offset yields that zone (UTC for Z); otherwise the value is local time.
func ParseDateTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		if strings.HasSuffix(s, "Z") {
			return t.UTC(), nil
		}
		return t, nil
	}
	if t, err := time.ParseInLocation(localDateTimeLayout, s, time.Local); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, s, time.Local)
}

// FormatDateTime is the inverse of ParseDateTime: UTC values carry a trailing Z,
// any other value is written as local time without a zone.
func FormatDateTime(t time.Time) string {
	if t.Location() == time.UTC {
		return t.Format(localDateTimeLayout) + "Z"
	}
	return t.In(time.Local).Format(localDateTimeLayout)
}

// parseNumber parses a numeric literal with an optional type suffix: L for int64,
// f for float32, d for float64 and m for decimal. Without a suffix the value is a
// float64.
func parseNumber(text string) (any, error) {
	body, suffix := text, byte(0)
	if last := text[len(text)-1]; strings.IndexByte("lLfFdDmM", last) >= 0 {
		body, suffix = text[:len(text)-1], last|0x20
	}
	switch suffix {
	case 'l':
		return strconv.ParseInt(body, 10, 64)
	case 'f':
		f, err := strconv.ParseFloat(body, 32)
		return float32(f), err
	case 'm':
		return decimal.NewFromString(body)
	}
	return strconv.ParseFloat(body, 64)
}
