// Package formula implements the safe expression language used by tool
// logic steps. A formula is tokenized and parsed into an immutable AST of
// whitelisted node types (literal, variable, unary, binary, call) and
// evaluated against a variable scope. There is no assignment, no loops,
// no member access, and no way to reach host code: calls are restricted
// to a closed set of pure functions.
package formula

import "fmt"

// ErrorKind classifies evaluation failures so the step executor can
// attribute them precisely.
type ErrorKind string

const (
	// KindSyntax is a malformed formula (unbalanced parens, bad literal...).
	KindSyntax ErrorKind = "syntax"
	// KindUnknownVariable is an identifier with no binding in scope.
	KindUnknownVariable ErrorKind = "unknown_variable"
	// KindDivisionByZero is division or modulo with a zero divisor.
	KindDivisionByZero ErrorKind = "division_by_zero"
	// KindDisallowedToken is anything outside the grammar whitelist:
	// assignment, member access, indexing, or a call to a non-whitelisted
	// function.
	KindDisallowedToken ErrorKind = "disallowed_token"
	// KindType is an operand of the wrong type (e.g. "abc" * 2).
	KindType ErrorKind = "type"
)

// Error is the single error type returned by Parse and Evaluate.
type Error struct {
	Kind    ErrorKind
	Message string
	Pos     int // byte offset into the formula, -1 when not applicable
}

func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s: %s (at offset %d)", e.Kind, e.Message, e.Pos)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func errf(kind ErrorKind, pos int, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// KindOf extracts the ErrorKind from an error returned by this package.
// Returns "" for nil or foreign errors.
func KindOf(err error) ErrorKind {
	if fe, ok := err.(*Error); ok {
		return fe.Kind
	}
	return ""
}
