// Package dberr defines the error taxonomy shared by the query builder, the
// N1QL grammar and the execution adapter.
//
// Every failure surfaced by this module is a *Error carrying a Code. Compile
// time errors (conflicting access paths, unsupported index kinds, values that
// cannot be serialized, misuse) are produced before any network call is made.
// Execution errors (query syntax, constraint, transient, not found, CAS
// conflict) are classified by the store implementations and passed through
// unchanged; nothing in this module retries.
//
// Callers match errors either with the IsXxx helpers or with errors.Is against
// the exported sentinels, which compare by Code:
//
//	if errors.Is(err, dberr.ErrNotFound) {
//	    // key did not exist
//	}
package dberr

import (
	"errors"
	"fmt"
)

// Code categorizes an Error.
type Code string

const (
	// CodeConflictingAccessPath: USE KEYS and USE INDEX requested on one query.
	CodeConflictingAccessPath Code = "CONFLICTING_ACCESS_PATH"

	// CodeUnsupportedIndexKind: an index hint kind outside VIEW and GSI.
	CodeUnsupportedIndexKind Code = "UNSUPPORTED_INDEX_KIND"

	// CodeSerialization: a value cannot be encoded to the wire format.
	CodeSerialization Code = "SERIALIZATION"

	// CodeNotFound: a key-based point lookup found nothing.
	CodeNotFound Code = "NOT_FOUND"

	// CodeQuerySyntax: the query service rejected the statement text.
	CodeQuerySyntax Code = "QUERY_SYNTAX"

	// CodeConstraint: a document with the key already exists, or similar.
	CodeConstraint Code = "CONSTRAINT"

	// CodeTransient: timeouts, node failures, temporary unavailability.
	CodeTransient Code = "TRANSIENT"

	// CodeConflict: a CAS token no longer matches the stored document.
	CodeConflict Code = "CONFLICT"

	// CodeMisuse: a programmer error such as compiling an INSERT statement.
	CodeMisuse Code = "MISUSE"

	// CodeQueryFailed: any other failure reported by the query service.
	CodeQueryFailed Code = "QUERY_FAILED"

	// CodeUnavailable: the backend does not offer the requested service.
	CodeUnavailable Code = "UNAVAILABLE"
)

// Valid reports whether c is one of the codes above.
func (c Code) Valid() bool {
	switch c {
	case CodeConflictingAccessPath, CodeUnsupportedIndexKind, CodeSerialization,
		CodeNotFound, CodeQuerySyntax, CodeConstraint, CodeTransient,
		CodeConflict, CodeMisuse, CodeQueryFailed, CodeUnavailable:
		return true
	}
	return false
}

// Sentinels for errors.Is. Matching is by Code only.
var (
	ErrConflictingAccessPath = &Error{Code: CodeConflictingAccessPath}
	ErrUnsupportedIndexKind  = &Error{Code: CodeUnsupportedIndexKind}
	ErrSerialization         = &Error{Code: CodeSerialization}
	ErrNotFound              = &Error{Code: CodeNotFound}
	ErrQuerySyntax           = &Error{Code: CodeQuerySyntax}
	ErrConstraint            = &Error{Code: CodeConstraint}
	ErrTransient             = &Error{Code: CodeTransient}
	ErrConflict              = &Error{Code: CodeConflict}
	ErrMisuse                = &Error{Code: CodeMisuse}
	ErrQueryFailed           = &Error{Code: CodeQueryFailed}
	ErrUnavailable           = &Error{Code: CodeUnavailable}
)

// Error is the structured error type used across the module.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Statement is the N1QL text involved, if any.
	Statement string

	// Err is the underlying driver or encoding error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Statement != "" {
		msg = fmt.Sprintf("%s (statement=%q)", msg, e.Statement)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an underlying cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithStatement returns a copy of err annotated with the statement text.
// Errors that are not *Error are wrapped as CodeQueryFailed.
func WithStatement(err error, statement string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		cp.Statement = statement
		return &cp
	}
	return &Error{Code: CodeQueryFailed, Err: err, Statement: statement}
}

// CodeOf returns the Code of err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConflictingAccessPath reports whether err is a conflicting access path error.
func IsConflictingAccessPath(err error) bool { return CodeOf(err) == CodeConflictingAccessPath }

// IsUnsupportedIndexKind reports whether err is an unsupported index kind error.
func IsUnsupportedIndexKind(err error) bool { return CodeOf(err) == CodeUnsupportedIndexKind }

// IsSerialization reports whether err is a serialization error.
func IsSerialization(err error) bool { return CodeOf(err) == CodeSerialization }

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsConflict reports whether err is a CAS conflict.
func IsConflict(err error) bool { return CodeOf(err) == CodeConflict }

// IsTransient reports whether err is a transient failure the caller may retry.
func IsTransient(err error) bool { return CodeOf(err) == CodeTransient }

// IsMisuse reports whether err is a programmer error.
func IsMisuse(err error) bool { return CodeOf(err) == CodeMisuse }

// IsQuerySyntax reports whether the query service rejected the statement text.
func IsQuerySyntax(err error) bool { return CodeOf(err) == CodeQuerySyntax }

// IsConstraint reports whether err is a constraint violation.
func IsConstraint(err error) bool { return CodeOf(err) == CodeConstraint }
