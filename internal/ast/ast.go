// Package ast defines the typed syntax tree built from a grammar parse tree.
package ast

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NodeType discriminates AST nodes. A node's type is fixed at construction.
type NodeType int

const (
	Symbol NodeType = iota
	MethodCall
	And
	Or
	Add
	Subtract
	Multiply
	Divide
	Modulo
	Equal
	NotEqual
	LessThan
	LessOrEqual
	GreaterThan
	GreaterOrEqual
	Dot
	As
	IntLiteral
	NumberLiteral
	StringLiteral
	GuidLiteral
	DateTimeLiteral
	ArrayLiteral
	IndexerAccess
	Lambda
	Not
	Unhandled
)

var nodeTypeNames = [...]string{
	Symbol:          "Symbol",
	MethodCall:      "MethodCall",
	And:             "And",
	Or:              "Or",
	Add:             "Add",
	Subtract:        "Subtract",
	Multiply:        "Multiply",
	Divide:          "Divide",
	Modulo:          "Modulo",
	Equal:           "Equal",
	NotEqual:        "NotEqual",
	LessThan:        "LessThan",
	LessOrEqual:     "LessOrEqual",
	GreaterThan:     "GreaterThan",
	GreaterOrEqual:  "GreaterOrEqual",
	Dot:             "Dot",
	As:              "As",
	IntLiteral:      "IntLiteral",
	NumberLiteral:   "NumberLiteral",
	StringLiteral:   "StringLiteral",
	GuidLiteral:     "GuidLiteral",
	DateTimeLiteral: "DateTimeLiteral",
	ArrayLiteral:    "ArrayLiteral",
	IndexerAccess:   "IndexerAccess",
	Lambda:          "Lambda",
	Not:             "Not",
	Unhandled:       "Unhandled",
}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

// IsBinary reports whether nodes of this type are BinaryNodes.
func (t NodeType) IsBinary() bool { return t >= And && t <= As }

// Node represents a node in the abstract syntax tree
type Node interface {
	Type() NodeType
	Children() []Node
}

// SymbolNode is a name with optional arguments. Written with parentheses it is a
// MethodCall, even when the argument list is empty.
type SymbolNode struct {
	Name      string
	Args      []Node
	HasParens bool
}

func (n *SymbolNode) Type() NodeType {
	if n.HasParens {
		return MethodCall
	}
	return Symbol
}

func (n *SymbolNode) Children() []Node { return n.Args }

// BinaryNode holds two operands and an operator type.
type BinaryNode struct {
	Op          NodeType
	Left, Right Node
}

func (n *BinaryNode) Type() NodeType   { return n.Op }
func (n *BinaryNode) Children() []Node { return []Node{n.Left, n.Right} }

// NotNode negates its operand.
type NotNode struct {
	Operand Node
}

func (n *NotNode) Type() NodeType   { return Not }
func (n *NotNode) Children() []Node { return []Node{n.Operand} }

// IntLiteralNode is an integer literal without suffix.
type IntLiteralNode struct {
	Value int64
}

func (n *IntLiteralNode) Type() NodeType   { return IntLiteral }
func (n *IntLiteralNode) Children() []Node { return nil }

// NumberLiteralNode is a numeric literal with a fraction, an exponent or a type
// suffix. Value is int64, float32, float64 or decimal.Decimal.
type NumberLiteralNode struct {
	Text  string
	Value any
}

func (n *NumberLiteralNode) Type() NodeType   { return NumberLiteral }
func (n *NumberLiteralNode) Children() []Node { return nil }

// StringLiteralNode is a quoted string literal.
type StringLiteralNode struct {
	Value string
}

func (n *StringLiteralNode) Type() NodeType   { return StringLiteral }
func (n *StringLiteralNode) Children() []Node { return nil }

// GuidLiteralNode is a guid'...' literal.
type GuidLiteralNode struct {
	Value uuid.UUID
}

func (n *GuidLiteralNode) Type() NodeType   { return GuidLiteral }
func (n *GuidLiteralNode) Children() []Node { return nil }

// DateTimeLiteralNode is a datetime'...' literal.
type DateTimeLiteralNode struct {
	Value time.Time
}

func (n *DateTimeLiteralNode) Type() NodeType   { return DateTimeLiteral }
func (n *DateTimeLiteralNode) Children() []Node { return nil }

// ArrayNode is a bracketed list [a, b, ...].
type ArrayNode struct {
	Elems []Node
}

func (n *ArrayNode) Type() NodeType   { return ArrayLiteral }
func (n *ArrayNode) Children() []Node { return n.Elems }

// IndexerNode is target[args...]. The target is not part of Children.
type IndexerNode struct {
	Target Node
	Args   []Node
}

func (n *IndexerNode) Type() NodeType   { return IndexerAccess }
func (n *IndexerNode) Children() []Node { return n.Args }

// LambdaNode is param: body inside a call argument list.
type LambdaNode struct {
	Param string
	Body  Node
}

func (n *LambdaNode) Type() NodeType   { return Lambda }
func (n *LambdaNode) Children() []Node { return []Node{n.Body} }

// UnhandledNode marks a parse construct with no typed equivalent. It is kept in the
// tree for diagnostics; conversion rejects it.
type UnhandledNode struct {
	Kind     string
	Text     string
	Pos      int
	Elements []Node
}

func (n *UnhandledNode) Type() NodeType   { return Unhandled }
func (n *UnhandledNode) Children() []Node { return n.Elements }

// FindUnhandled returns the first Unhandled node in depth-first order, or nil.
func FindUnhandled(n Node) *UnhandledNode {
	if u, ok := n.(*UnhandledNode); ok {
		return u
	}
	if ix, ok := n.(*IndexerNode); ok {
		if u := FindUnhandled(ix.Target); u != nil {
			return u
		}
	}
	for _, c := range n.Children() {
		if u := FindUnhandled(c); u != nil {
			return u
		}
	}
	return nil
}
