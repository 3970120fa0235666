package grammar

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nlstn/go-querytext/internal/qerrors"
)

// TokenType classifies a Token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdentifier
	TokenString
	TokenNumber
	TokenPrefixed
	TokenOperator
	TokenLogical
	TokenNot
	TokenAs
	TokenArithmetic
	TokenLParen
	TokenRParen
	TokenLBracket
	TokenRBracket
	TokenComma
	TokenDot
	TokenColon
)

var tokenNames = [...]string{
	TokenEOF:        "end of input",
	TokenIdentifier: "identifier",
	TokenString:     "string",
	TokenNumber:     "number",
	TokenPrefixed:   "prefixed literal",
	TokenOperator:   "operator",
	TokenLogical:    "logical operator",
	TokenNot:        "'not'",
	TokenAs:         "'as'",
	TokenArithmetic: "arithmetic operator",
	TokenLParen:     "'('",
	TokenRParen:     "')'",
	TokenLBracket:   "'['",
	TokenRBracket:   "']'",
	TokenComma:      "','",
	TokenDot:        "'.'",
	TokenColon:      "':'",
}

func (t TokenType) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return "unknown"
}

// Token is one lexical unit of query text. Pos is its byte offset.
type Token struct {
	Type  TokenType
	Value string
	// Prefix is the type tag of a prefixed literal such as guid'...'.
	Prefix string
	Pos    int
}

// Tokenizer splits query text into tokens. The input is decoded as UTF-8; pos
// is the byte offset of ch and width its encoded length.
type Tokenizer struct {
	input string
	pos   int
	width int
	ch    rune
	last  TokenType
}

// NewTokenizer returns a tokenizer positioned at the start of input.
func NewTokenizer(input string) *Tokenizer {
	t := &Tokenizer{input: input, last: TokenEOF}
	t.ch, t.width = t.at(0)
	return t
}

// advance moves to the next rune. ch is 0 past the end of input.
func (t *Tokenizer) advance() {
	t.pos += t.width
	t.ch, t.width = t.at(t.pos)
}

func (t *Tokenizer) peek() rune {
	r, _ := t.at(t.pos + t.width)
	return r
}

func (t *Tokenizer) at(i int) (rune, int) {
	if i >= len(t.input) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(t.input[i:])
}

func (t *Tokenizer) skipWhitespace() {
	for t.ch != 0 && strings.ContainsRune(" \t\n\r", t.ch) {
		t.advance()
	}
}

// readString reads a quoted string. A doubled quote stands for one quote character.
func (t *Tokenizer) readString() (string, bool) {
	quote := t.ch
	t.advance() // skip opening quote

	var result strings.Builder
	for t.pos < len(t.input) {
		if t.ch == quote {
			if t.peek() != quote {
				t.advance() // skip closing quote
				return result.String(), true
			}
			t.advance()
		}
		result.WriteString(t.input[t.pos : t.pos+t.width])
		t.advance()
	}
	return result.String(), false
}

// readNumber scans a number with an optional sign, fraction, exponent and type
// suffix and returns it as written.
func (t *Tokenizer) readNumber() string {
	start := t.pos
	if t.ch == '-' {
		t.advance()
	}
	t.skipDigits()
	if t.ch == '.' && isDigit(t.peek()) {
		t.advance()
		t.skipDigits()
	}
	if (t.ch == 'e' || t.ch == 'E') && (isDigit(t.peek()) || t.peek() == '-' || t.peek() == '+') {
		t.advance()
		if t.ch == '+' || t.ch == '-' {
			t.advance()
		}
		t.skipDigits()
	}
	if t.ch != 0 && strings.ContainsRune("lLfFdDmM", t.ch) && !isIdentChar(t.peek()) {
		t.advance()
	}
	return t.input[start:t.pos]
}

func (t *Tokenizer) skipDigits() {
	for isDigit(t.ch) {
		t.advance()
	}
}

func (t *Tokenizer) readIdentifier() string {
	start := t.pos
	for t.ch != 0 && isIdentChar(t.ch) {
		t.advance()
	}
	return t.input[start:t.pos]
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// NextToken returns the next token
func (t *Tokenizer) NextToken() (*Token, error) {
	t.skipWhitespace()

	if t.ch == 0 && t.pos >= len(t.input) {
		return &Token{Type: TokenEOF, Pos: t.pos}, nil
	}

	pos := t.pos

	token, err := t.tokenizeString(pos)
	if err != nil {
		return nil, err
	}
	if token == nil {
		token = t.tokenizeNumber(pos)
	}
	if token == nil {
		token = t.tokenizeSpecialChar(pos)
	}
	if token == nil {
		if token, err = t.tokenizeIdentifierOrKeyword(pos); err != nil {
			return nil, err
		}
	}
	if token == nil {
		return nil, qerrors.Syntax(t.pos, "unexpected character '%c'", t.ch)
	}
	t.last = token.Type
	return token, nil
}

// tokenizeString tokenizes string literals
func (t *Tokenizer) tokenizeString(pos int) (*Token, error) {
	if t.ch == '\'' || t.ch == '"' {
		value, ok := t.readString()
		if !ok {
			return nil, qerrors.Syntax(pos, "unterminated string literal")
		}
		return &Token{Type: TokenString, Value: value, Pos: pos}, nil
	}
	return nil, nil
}

// endsOperand reports whether the previous token closes an operand, in which case a
// following '-' is subtraction rather than a sign.
func (t *Tokenizer) endsOperand() bool {
	switch t.last {
	case TokenIdentifier, TokenString, TokenNumber, TokenPrefixed, TokenRParen, TokenRBracket:
		return true
	}
	return false
}

// tokenizeNumber tokenizes numeric literals
func (t *Tokenizer) tokenizeNumber(pos int) *Token {
	if isDigit(t.ch) || (t.ch == '-' && isDigit(t.peek()) && !t.endsOperand()) {
		value := t.readNumber()
		return &Token{Type: TokenNumber, Value: value, Pos: pos}
	}
	return nil
}

// tokenizeSpecialChar tokenizes punctuation and symbolic operators
func (t *Tokenizer) tokenizeSpecialChar(pos int) *Token {
	var typ TokenType
	switch t.ch {
	case '(':
		typ = TokenLParen
	case ')':
		typ = TokenRParen
	case '[':
		typ = TokenLBracket
	case ']':
		typ = TokenRBracket
	case ',':
		typ = TokenComma
	case '.':
		typ = TokenDot
	case ':':
		typ = TokenColon
	case '+', '-', '*', '/', '%':
		typ = TokenArithmetic
	default:
		return nil
	}
	value := string(t.ch)
	t.advance()
	return &Token{Type: typ, Value: value, Pos: pos}
}

// tokenizeIdentifierOrKeyword tokenizes identifiers, keywords and prefixed literals
func (t *Tokenizer) tokenizeIdentifierOrKeyword(pos int) (*Token, error) {
	if !unicode.IsLetter(t.ch) && t.ch != '_' {
		return nil, nil
	}

	value := t.readIdentifier()

	// An identifier glued to a quote is a type-tagged literal such as guid'...'.
	// Unknown tags are left for the AST builder to report.
	if t.ch == '\'' {
		body, ok := t.readString()
		if !ok {
			return nil, qerrors.Syntax(pos, "malformed %s literal: missing closing quote", value)
		}
		return &Token{Type: TokenPrefixed, Prefix: strings.ToLower(value), Value: body, Pos: pos}, nil
	}

	// A member name after '.' is never a keyword.
	if t.last == TokenDot {
		return &Token{Type: TokenIdentifier, Value: value, Pos: pos}, nil
	}

	lower := strings.ToLower(value)

	// add, sub, mul, div, mod are function names when followed by '('
	if kw, ok := keywords[lower]; ok && kw.Type == TokenArithmetic && t.ch == '(' {
		return &Token{Type: TokenIdentifier, Value: value, Pos: pos}, nil
	}

	if token := classifyKeyword(lower, pos); token != nil {
		return token, nil
	}

	return &Token{Type: TokenIdentifier, Value: value, Pos: pos}, nil
}

// keywords maps the lower case word operators to their tokens. Arithmetic words
// share the token of their symbol.
var keywords = map[string]Token{
	"and": {Type: TokenLogical, Value: "and"},
	"or":  {Type: TokenLogical, Value: "or"},
	"not": {Type: TokenNot, Value: "not"},
	"as":  {Type: TokenAs, Value: "as"},
	"eq":  {Type: TokenOperator, Value: "eq"},
	"ne":  {Type: TokenOperator, Value: "ne"},
	"gt":  {Type: TokenOperator, Value: "gt"},
	"ge":  {Type: TokenOperator, Value: "ge"},
	"lt":  {Type: TokenOperator, Value: "lt"},
	"le":  {Type: TokenOperator, Value: "le"},
	"add": {Type: TokenArithmetic, Value: "+"},
	"sub": {Type: TokenArithmetic, Value: "-"},
	"mul": {Type: TokenArithmetic, Value: "*"},
	"div": {Type: TokenArithmetic, Value: "/"},
	"mod": {Type: TokenArithmetic, Value: "%"},
}

func classifyKeyword(lower string, pos int) *Token {
	kw, ok := keywords[lower]
	if !ok {
		return nil
	}
	kw.Pos = pos
	return &kw
}

// TokenizeAll returns every token of the input, ending with TokenEOF.
func (t *Tokenizer) TokenizeAll() ([]*Token, error) {
	var tokens []*Token
	for {
		token, err := t.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
		if token.Type == TokenEOF {
			return tokens, nil
		}
	}
}
