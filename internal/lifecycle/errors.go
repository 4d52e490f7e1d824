package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an error category surfaced to callers.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeDepthExceeded      Code = "DEPTH_EXCEEDED"
	CodeCircularDependency Code = "CIRCULAR_DEPENDENCY"
	CodeIdentifierConflict Code = "IDENTIFIER_CONFLICT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConcurrency        Code = "CONCURRENCY_CONFLICT"
)

// Error is a rejected mutation or lookup. Every rejection leaves persisted
// state untouched, so all codes are recoverable by the caller.
//
// Use errors.Is against the sentinels below to branch on the category and
// errors.As to get at the offending identifiers and states.
type Error struct {
	Code    Code
	Message string

	// Kind and ID identify the entity the operation targeted.
	Kind Kind
	ID   string

	// From and To are set for transition errors.
	From State
	To   State

	// Parent and Child are set for hierarchy errors.
	Parent string
	Child  string
}

// Sentinels for errors.Is. Only the Code is compared.
var (
	ErrValidation         = &Error{Code: CodeValidation}
	ErrInvalidTransition  = &Error{Code: CodeInvalidTransition}
	ErrDepthExceeded      = &Error{Code: CodeDepthExceeded}
	ErrCircularDependency = &Error{Code: CodeCircularDependency}
	ErrIdentifierConflict = &Error{Code: CodeIdentifierConflict}
	ErrNotFound           = &Error{Code: CodeNotFound}
	ErrConcurrency        = &Error{Code: CodeConcurrency}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	var attrs []string
	if e.ID != "" {
		attrs = append(attrs, fmt.Sprintf("%s=%s", e.Kind, e.ID))
	}
	if e.From != "" || e.To != "" {
		attrs = append(attrs, fmt.Sprintf("from=%q", e.From), fmt.Sprintf("to=%q", e.To))
	}
	if e.Child != "" {
		attrs = append(attrs, "child="+e.Child)
	}
	if e.Parent != "" {
		attrs = append(attrs, "parent="+e.Parent)
	}
	if len(attrs) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(attrs, ", "))
	}
	return b.String()
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf returns the Code of err, or "" when err is not a lifecycle error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFound error for the given entity.
func NotFound(kind Kind, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s does not exist", kind), Kind: kind, ID: id}
}

// InvalidTransition builds an InvalidTransition error. reason may be empty.
func InvalidTransition(kind Kind, id string, from, to State, reason string) *Error {
	msg := fmt.Sprintf("%s cannot move from %q to %q", kind, from, to)
	if reason != "" {
		msg += ": " + reason
	}
	return &Error{Code: CodeInvalidTransition, Message: msg, Kind: kind, ID: id, From: from, To: to}
}

// IdentifierConflict builds an IdentifierConflict error after attempts
// allocations collided.
func IdentifierConflict(kind Kind, attempts int) *Error {
	return &Error{
		Code:    CodeIdentifierConflict,
		Message: fmt.Sprintf("no free %s identifier after %d attempts", kind, attempts),
		Kind:    kind,
	}
}

// ConcurrencyConflict builds a ConcurrencyConflict error for op.
func ConcurrencyConflict(op string, attempts int) *Error {
	return &Error{
		Code:    CodeConcurrency,
		Message: fmt.Sprintf("%s could not commit after %d attempts", op, attempts),
	}
}
