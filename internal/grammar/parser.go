// Package grammar turns query text into a generic parse tree. The tree keeps one
// production per grammar rule; the ast package reduces it into typed nodes.
package grammar

import (
	"github.com/nlstn/go-querytext/internal/qerrors"
)

// Production identifies the grammar rule that produced a Node.
type Production int

const (
	ProdExpression Production = iota
	ProdList
	ProdAs
	ProdOr
	ProdAnd
	ProdNot
	ProdEqual
	ProdNotEqual
	ProdLessThan
	ProdLessOrEqual
	ProdGreaterThan
	ProdGreaterOrEqual
	ProdAdd
	ProdSubtract
	ProdMultiply
	ProdDivide
	ProdModulo
	ProdDot
	ProdCall
	ProdIndexer
	ProdLambda
	ProdParen
	ProdArray
	ProdIdentifier
	ProdInteger
	ProdNumber
	ProdString
	ProdPrefixed
)

var productionNames = [...]string{
	ProdExpression:     "Expression",
	ProdList:           "List",
	ProdAs:             "As",
	ProdOr:             "Or",
	ProdAnd:            "And",
	ProdNot:            "Not",
	ProdEqual:          "Equal",
	ProdNotEqual:       "NotEqual",
	ProdLessThan:       "LessThan",
	ProdLessOrEqual:    "LessOrEqual",
	ProdGreaterThan:    "GreaterThan",
	ProdGreaterOrEqual: "GreaterOrEqual",
	ProdAdd:            "Add",
	ProdSubtract:       "Subtract",
	ProdMultiply:       "Multiply",
	ProdDivide:         "Divide",
	ProdModulo:         "Modulo",
	ProdDot:            "Dot",
	ProdCall:           "Call",
	ProdIndexer:        "Indexer",
	ProdLambda:         "Lambda",
	ProdParen:          "Paren",
	ProdArray:          "Array",
	ProdIdentifier:     "Identifier",
	ProdInteger:        "Integer",
	ProdNumber:         "Number",
	ProdString:         "String",
	ProdPrefixed:       "Prefixed",
}

func (p Production) String() string {
	if int(p) < len(productionNames) {
		return productionNames[p]
	}
	return "Unknown"
}

// Node is a parse tree node. Leaf productions carry their Token; inner productions
// carry the token that introduced them, when there is one.
type Node struct {
	Prod     Production
	Token    *Token
	Children []*Node
}

// Pos returns the position where the node starts in the source text, or -1.
func (n *Node) Pos() int {
	pos := -1
	for cur := n; cur != nil; {
		if cur.Token != nil && (pos < 0 || cur.Token.Pos < pos) {
			pos = cur.Token.Pos
		}
		if len(cur.Children) == 0 {
			break
		}
		cur = cur.Children[0]
	}
	return pos
}

var comparisonProductions = map[string]Production{
	"eq": ProdEqual,
	"ne": ProdNotEqual,
	"lt": ProdLessThan,
	"le": ProdLessOrEqual,
	"gt": ProdGreaterThan,
	"ge": ProdGreaterOrEqual,
}

var arithmeticProductions = map[string]Production{
	"+": ProdAdd,
	"-": ProdSubtract,
	"*": ProdMultiply,
	"/": ProdDivide,
	"%": ProdModulo,
}

// Parser parses a token stream into a parse tree
type Parser struct {
	tokens  []*Token
	current int
}

// NewParser creates a new parser
func NewParser(tokens []*Token) *Parser {
	return &Parser{
		tokens:  tokens,
		current: 0,
	}
}

// ParseExpression tokenizes and parses a single expression.
func ParseExpression(text string) (*Node, error) {
	tokens, err := NewTokenizer(text).TokenizeAll()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).Parse()
}

// ParseList tokenizes and parses a comma separated list of expressions, each
// optionally aliased with 'as'.
func ParseList(text string) (*Node, error) {
	tokens, err := NewTokenizer(text).TokenizeAll()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).ParseList()
}

// currentToken returns the current token
func (p *Parser) currentToken() *Token {
	if p.current >= len(p.tokens) {
		return &Token{Type: TokenEOF}
	}
	return p.tokens[p.current]
}

// peekToken returns the token after the current one
func (p *Parser) peekToken() *Token {
	if p.current+1 >= len(p.tokens) {
		return &Token{Type: TokenEOF}
	}
	return p.tokens[p.current+1]
}

// advance moves to the next token
func (p *Parser) advance() *Token {
	token := p.currentToken()
	if p.current < len(p.tokens)-1 {
		p.current++
	}
	return token
}

// expect checks if the current token matches the expected type and advances
func (p *Parser) expect(tokenType TokenType) (*Token, error) {
	token := p.currentToken()
	if token.Type != tokenType {
		return nil, qerrors.Syntax(token.Pos, "expected %v, got %v", tokenType, token.Type)
	}
	return p.advance(), nil
}

// Parse parses the tokens into a single expression production
func (p *Parser) Parse() (*Node, error) {
	node, err := p.parseAs()
	if err != nil {
		return nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return &Node{Prod: ProdExpression, Children: []*Node{node}}, nil
}

// ParseList parses the tokens into a list production
func (p *Parser) ParseList() (*Node, error) {
	list := &Node{Prod: ProdList, Token: p.currentToken()}
	for {
		item, err := p.parseAs()
		if err != nil {
			return nil, err
		}
		list.Children = append(list.Children, item)
		if p.currentToken().Type != TokenComma {
			break
		}
		p.advance()
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *Parser) expectEnd() error {
	if tok := p.currentToken(); tok.Type != TokenEOF {
		return qerrors.Syntax(tok.Pos, "unexpected %v %q after expression", tok.Type, tok.Value)
	}
	return nil
}

// parseAs handles the optional alias (lowest precedence)
func (p *Parser) parseAs() (*Node, error) {
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.currentToken().Type != TokenAs {
		return node, nil
	}
	op := p.advance()
	alias, err := p.expect(TokenIdentifier)
	if err != nil {
		return nil, err
	}
	return &Node{Prod: ProdAs, Token: op, Children: []*Node{node, leaf(ProdIdentifier, alias)}}, nil
}

// parseOr handles OR expressions. The production is emitted even for a single operand.
func (p *Parser) parseOr() (*Node, error) {
	return p.parseLogical("or", ProdOr, p.parseAnd)
}

// parseAnd handles AND expressions
func (p *Parser) parseAnd() (*Node, error) {
	return p.parseLogical("and", ProdAnd, p.parseNot)
}

func (p *Parser) parseLogical(keyword string, prod Production, next func() (*Node, error)) (*Node, error) {
	first, err := next()
	if err != nil {
		return nil, err
	}
	node := &Node{Prod: prod, Children: []*Node{first}}
	for p.currentToken().Type == TokenLogical && p.currentToken().Value == keyword {
		op := p.advance()
		if node.Token == nil {
			node.Token = op
		}
		operand, err := next()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, operand)
	}
	return node, nil
}

// parseNot handles NOT expressions
func (p *Parser) parseNot() (*Node, error) {
	if p.currentToken().Type == TokenNot {
		op := p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Node{Prod: ProdNot, Token: op, Children: []*Node{operand}}, nil
	}
	return p.parseComparison()
}

// parseComparison handles comparison expressions. Comparisons do not chain.
func (p *Parser) parseComparison() (*Node, error) {
	left, err := p.parseArithmetic()
	if err != nil {
		return nil, err
	}

	if p.currentToken().Type == TokenOperator {
		op := p.advance()
		right, err := p.parseArithmetic()
		if err != nil {
			return nil, err
		}
		return &Node{Prod: comparisonProductions[op.Value], Token: op, Children: []*Node{left, right}}, nil
	}

	return left, nil
}

// parseArithmetic handles addition and subtraction
func (p *Parser) parseArithmetic() (*Node, error) {
	return p.parseBinaryRun("+-", p.parseTerm)
}

// parseTerm handles multiplication, division, and modulo
func (p *Parser) parseTerm() (*Node, error) {
	return p.parseBinaryRun("*/%", p.parsePostfix)
}

// parseBinaryRun parses a left associative run of operators. Consecutive uses of the
// same operator are flattened into one production with N children.
func (p *Parser) parseBinaryRun(ops string, next func() (*Node, error)) (*Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}

	var run *Node
	for p.isArithmetic(ops) {
		op := p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		prod := arithmeticProductions[op.Value]
		if run != nil && run.Prod == prod {
			run.Children = append(run.Children, right)
			continue
		}
		run = &Node{Prod: prod, Token: op, Children: []*Node{left, right}}
		left = run
	}

	return left, nil
}

func (p *Parser) isArithmetic(ops string) bool {
	tok := p.currentToken()
	if tok.Type != TokenArithmetic {
		return false
	}
	for _, c := range ops {
		if tok.Value == string(c) {
			return true
		}
	}
	return false
}

// parsePostfix handles member access, method calls and indexers following a primary.
// A chain a.b.c(x) becomes one Dot production [a, b, c(x)].
func (p *Parser) parsePostfix() (*Node, error) {
	target, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	var chain *Node
	for {
		switch p.currentToken().Type {
		case TokenDot:
			p.advance()
			name, err := p.expect(TokenIdentifier)
			if err != nil {
				return nil, err
			}
			segment := leaf(ProdIdentifier, name)
			if p.currentToken().Type == TokenLParen {
				if segment, err = p.parseCall(name); err != nil {
					return nil, err
				}
			}
			if chain == nil {
				chain = &Node{Prod: ProdDot, Token: name, Children: []*Node{target}}
				target = chain
			}
			chain.Children = append(chain.Children, segment)
		case TokenLBracket:
			open := p.advance()
			args, err := p.parseArgs(TokenRBracket)
			if err != nil {
				return nil, err
			}
			if len(args) == 0 {
				return nil, qerrors.Syntax(open.Pos, "indexer requires an argument")
			}
			target = &Node{Prod: ProdIndexer, Token: open, Children: append([]*Node{target}, args...)}
			chain = nil
		default:
			return target, nil
		}
	}
}

// parsePrimary handles literals, identifiers, calls, grouped expressions and arrays
func (p *Parser) parsePrimary() (*Node, error) {
	token := p.currentToken()

	switch token.Type {
	case TokenLParen:
		return p.parseGroupedExpression()
	case TokenLBracket:
		open := p.advance()
		elems, err := p.parseArgs(TokenRBracket)
		if err != nil {
			return nil, err
		}
		return &Node{Prod: ProdArray, Token: open, Children: elems}, nil
	case TokenString:
		return leaf(ProdString, p.advance()), nil
	case TokenPrefixed:
		return leaf(ProdPrefixed, p.advance()), nil
	case TokenNumber:
		return p.parseNumberLiteral(p.advance()), nil
	case TokenIdentifier:
		p.advance()
		if p.currentToken().Type == TokenLParen {
			return p.parseCall(token)
		}
		return leaf(ProdIdentifier, token), nil
	}

	if token.Type == TokenEOF {
		return nil, qerrors.Syntax(token.Pos, "unexpected end of input")
	}
	return nil, qerrors.Syntax(token.Pos, "unexpected %v %q", token.Type, token.Value)
}

// parseGroupedExpression parses a grouped expression like (expr)
func (p *Parser) parseGroupedExpression() (*Node, error) {
	open := p.advance() // consume '('
	inner, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return &Node{Prod: ProdParen, Token: open, Children: []*Node{inner}}, nil
}

// parseNumberLiteral classifies a number token. Integers without suffix become
// Integer productions; everything else is a Number.
func (p *Parser) parseNumberLiteral(token *Token) *Node {
	for _, c := range token.Value {
		if (c < '0' || c > '9') && c != '-' {
			return leaf(ProdNumber, token)
		}
	}
	return leaf(ProdInteger, token)
}

// parseCall parses name(arg, ...) with the name as the first child
func (p *Parser) parseCall(name *Token) (*Node, error) {
	p.advance() // consume '('
	args, err := p.parseArgs(TokenRParen)
	if err != nil {
		return nil, err
	}
	return &Node{Prod: ProdCall, Token: name, Children: append([]*Node{leaf(ProdIdentifier, name)}, args...)}, nil
}

// parseArgs parses a comma separated argument list up to and including the closing token.
// An argument of the form 'x: expr' is a lambda.
func (p *Parser) parseArgs(closing TokenType) ([]*Node, error) {
	var args []*Node

	if p.currentToken().Type != closing {
		for {
			arg, err := p.parseArg()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if p.currentToken().Type != TokenComma {
				break
			}
			p.advance()
		}
	}

	if _, err := p.expect(closing); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parseArg() (*Node, error) {
	if p.currentToken().Type == TokenIdentifier && p.peekToken().Type == TokenColon {
		param := p.advance()
		p.advance() // consume ':'
		body, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		return &Node{Prod: ProdLambda, Token: param, Children: []*Node{leaf(ProdIdentifier, param), body}}, nil
	}
	return p.parseOr()
}

func leaf(prod Production, token *Token) *Node {
	return &Node{Prod: prod, Token: token}
}
