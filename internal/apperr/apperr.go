// Package apperr defines the failure taxonomy shared by the lifecycle services
// and its mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindNotFound
	KindInvalidState
	KindValidationFailed
	KindProfileIncomplete
	KindCollaboratorUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindValidationFailed:
		return "validation_failed"
	case KindProfileIncomplete:
		return "profile_incomplete"
	case KindCollaboratorUnavailable:
		return "collaborator_unavailable"
	default:
		return "internal"
	}
}

// Error is a classified failure. Message is safe to show to the caller;
// Err carries the causal detail and is only logged.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can write errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthorized            = &Error{Kind: KindUnauthorized}
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrInvalidState            = &Error{Kind: KindInvalidState}
	ErrValidationFailed        = &Error{Kind: KindValidationFailed}
	ErrProfileIncomplete       = &Error{Kind: KindProfileIncomplete}
	ErrCollaboratorUnavailable = &Error{Kind: KindCollaboratorUnavailable}
)

// Profile completion codes let clients redirect to the right form.
const (
	CodeProfileNameRequired    = "PROFILE_NAME_REQUIRED"
	CodeProfileContactRequired = "PROFILE_CONTACT_REQUIRED"
)

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: msg}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: what + " not found"}
}

func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Code: "INVALID_STATE", Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidationFailed, Code: "VALIDATION_FAILED", Message: fmt.Sprintf(format, args...)}
}

func ProfileIncomplete(code, msg string) *Error {
	return &Error{Kind: KindProfileIncomplete, Code: code, Message: msg}
}

// Unavailable wraps a storage/identity backend failure.
func Unavailable(what string, err error) *Error {
	return &Error{Kind: KindCollaboratorUnavailable, Code: "UNAVAILABLE", Message: what + " is unavailable", Err: err}
}

// Internal wraps an unexpected failure behind a generic message.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: "internal error", Err: err}
}

// From classifies any error, defaulting to Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// HTTPStatus maps a Kind to its response status.
func HTTPStatus(k Kind) int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState:
		return http.StatusConflict
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindProfileIncomplete:
		return http.StatusUnprocessableEntity
	case KindCollaboratorUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Storage passes classified errors through and wraps anything else as an
// unavailable store.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Unavailable("storage", err)
}
