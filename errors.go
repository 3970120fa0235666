package querytext

import (
	"errors"

	"github.com/nlstn/go-querytext/internal/qerrors"
)

// Sentinel errors, one per error class. Every error returned by a Service
// matches exactly one of them with errors.Is.
var (
	// ErrSyntax reports malformed query text.
	ErrSyntax = qerrors.ErrSyntax

	// ErrUnresolvedSymbol reports a name the resolver cannot map.
	ErrUnresolvedSymbol = qerrors.ErrUnresolvedSymbol

	// ErrUnsupportedOperator reports an operator with no equivalent on the other
	// side of the translation.
	ErrUnsupportedOperator = qerrors.ErrUnsupportedOperator

	// ErrSplitImpossible reports an expression that cannot be split.
	ErrSplitImpossible = qerrors.ErrSplitImpossible
)

// QueryError is the structured error returned by every operation.
type QueryError = qerrors.QueryError

// ErrorCode classifies a QueryError.
type ErrorCode = qerrors.Code

// Error codes carried by QueryError.
const (
	ErrorCodeSyntax              = qerrors.CodeSyntax
	ErrorCodeUnresolvedSymbol    = qerrors.CodeUnresolvedSymbol
	ErrorCodeUnsupportedOperator = qerrors.CodeUnsupportedOperator
	ErrorCodeSplitImpossible     = qerrors.CodeSplitImpossible
)

// IsSyntaxError reports whether err comes from malformed text rather than from
// resolving well-formed text against a type.
func IsSyntaxError(err error) bool {
	return errors.Is(err, ErrSyntax)
}

// AsQueryError returns the QueryError in err's chain.
func AsQueryError(err error) (*QueryError, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
