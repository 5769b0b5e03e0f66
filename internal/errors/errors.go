package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes shared across the service. The first block mirrors the generic
// platform codes; the second block is specific to approval workflow semantics.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL"

	ErrCodeInvalidTemplate        = "INVALID_TEMPLATE"
	ErrCodeNotAuthorized          = "NOT_AUTHORIZED"
	ErrCodeCommentRequired        = "COMMENT_REQUIRED"
	ErrCodeActionNotAllowed       = "ACTION_NOT_ALLOWED"
	ErrCodeInvalidState           = "INVALID_STATE"
	ErrCodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// Error is a coded error carried from repositories and services up to the
// HTTP layer, where the code selects the response status.
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates an underlying error with a code and message.
func Wrap(err error, code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound creates a NOT_FOUND error for a resource/id pair.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

// InvalidInput creates an INVALID_INPUT error for a named field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("%s: %s", field, message)}
}

// Code extracts the error code, or ErrCodeInternal for uncoded errors.
func Code(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return Code(err) == code
}

// HTTPStatus maps an error code to an HTTP response status.
func HTTPStatus(err error) int {
	switch Code(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidTemplate, ErrCodeCommentRequired:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized, ErrCodeNotAuthorized:
		return http.StatusForbidden
	case ErrCodeConflict, ErrCodeInvalidState, ErrCodeActionNotAllowed, ErrCodeConcurrentModification:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
