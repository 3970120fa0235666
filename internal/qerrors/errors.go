// Package qerrors holds the error taxonomy shared by the parser, converter, encoder
// and splitter. The root package re-exports it.
package qerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per error class. Use errors.Is to classify a returned error.
var (
	// ErrSyntax reports malformed query text.
	ErrSyntax = errors.New("querytext: syntax error")

	// ErrUnresolvedSymbol reports an identifier or property path the resolver cannot map.
	ErrUnresolvedSymbol = errors.New("querytext: unresolved symbol")

	// ErrUnsupportedOperator reports an operator or node with no equivalent on the other side
	// of the translation.
	ErrUnsupportedOperator = errors.New("querytext: unsupported operator")

	// ErrSplitImpossible reports an expression that cannot be divided into a remote query
	// and a local residual.
	ErrSplitImpossible = errors.New("querytext: split impossible")
)

// Code classifies a QueryError.
type Code string

const (
	CodeSyntax              Code = "Syntax"
	CodeUnresolvedSymbol    Code = "UnresolvedSymbol"
	CodeUnsupportedOperator Code = "UnsupportedOperator"
	CodeSplitImpossible     Code = "SplitImpossible"
)

var sentinels = map[Code]error{
	CodeSyntax:              ErrSyntax,
	CodeUnresolvedSymbol:    ErrUnresolvedSymbol,
	CodeUnsupportedOperator: ErrUnsupportedOperator,
	CodeSplitImpossible:     ErrSplitImpossible,
}

// QueryError is the structured error returned by every stage.
type QueryError struct {
	// Code is the error class.
	Code Code

	// Message is a human-readable description.
	Message string

	// Position is the byte offset into the query text, or -1 when the error did not
	// come from text.
	Position int

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	msg := e.Message
	if e.Position >= 0 {
		msg = fmt.Sprintf("%s at position %d", msg, e.Position)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is() and errors.As().
func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's class.
func (e *QueryError) Is(target error) bool {
	return sentinels[e.Code] == target
}

func newf(code Code, pos int, err error, format string, args ...any) *QueryError {
	return &QueryError{Code: code, Message: fmt.Sprintf(format, args...), Position: pos, Err: err}
}

// Syntax returns a syntax error at pos.
func Syntax(pos int, format string, args ...any) error {
	return newf(CodeSyntax, pos, nil, format, args...)
}

// SyntaxWrap returns a syntax error at pos wrapping err.
func SyntaxWrap(pos int, err error, format string, args ...any) error {
	return newf(CodeSyntax, pos, err, format, args...)
}

// Unresolved returns an unresolved symbol error.
func Unresolved(format string, args ...any) error {
	return newf(CodeUnresolvedSymbol, -1, nil, format, args...)
}

// UnresolvedWrap returns an unresolved symbol error wrapping err.
func UnresolvedWrap(err error, format string, args ...any) error {
	return newf(CodeUnresolvedSymbol, -1, err, format, args...)
}

// Unsupported returns an unsupported operator error.
func Unsupported(format string, args ...any) error {
	return newf(CodeUnsupportedOperator, -1, nil, format, args...)
}

// UnsupportedWrap returns an unsupported operator error wrapping err.
func UnsupportedWrap(err error, format string, args ...any) error {
	return newf(CodeUnsupportedOperator, -1, err, format, args...)
}

// SplitImpossible returns a split error.
func SplitImpossible(format string, args ...any) error {
	return newf(CodeSplitImpossible, -1, nil, format, args...)
}
