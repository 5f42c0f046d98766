package apperr

import "fmt"

// Kind categorizes a domain failure for the transport layer.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindBadRequest Kind = "bad_request"
)

// Error is a categorized domain failure with a caller-facing message.
type Error struct {
	kind    Kind
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the failure category.
func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns the caller-facing message without any wrapped cause.
func (e *Error) Message() string {
	return e.message
}

// NotFound reports a missing work, page, user, or collaborator row.
func NotFound(format string, args ...any) *Error {
	return &Error{kind: KindNotFound, message: fmt.Sprintf(format, args...)}
}

// Forbidden reports a missing actor relationship (not owner, not author, ...).
func Forbidden(format string, args ...any) *Error {
	return &Error{kind: KindForbidden, message: fmt.Sprintf(format, args...)}
}

// Conflict reports a uniqueness or state-machine violation.
func Conflict(format string, args ...any) *Error {
	return &Error{kind: KindConflict, message: fmt.Sprintf(format, args...)}
}

// BadRequest reports invalid input such as oversized content.
func BadRequest(format string, args ...any) *Error {
	return &Error{kind: KindBadRequest, message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying error for logs while keeping the message.
func (e *Error) WithCause(cause error) *Error {
	return &Error{kind: e.kind, message: e.message, cause: cause}
}
