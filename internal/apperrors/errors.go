package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error so handlers can map it to a response.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindState          Kind = "state"
	KindConflict       Kind = "conflict"
)

// Error is a classified domain error with a message safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, apperrors.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Kind sentinels for errors.Is checks.
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrState          = &Error{Kind: KindState}
	ErrConflict       = &Error{Kind: KindConflict}
)

func Authentication(msg string) error { return &Error{Kind: KindAuthentication, Message: msg} }
func Authorization(msg string) error  { return &Error{Kind: KindAuthorization, Message: msg} }
func Validation(msg string) error     { return &Error{Kind: KindValidation, Message: msg} }
func NotFound(msg string) error       { return &Error{Kind: KindNotFound, Message: msg} }
func State(msg string) error          { return &Error{Kind: KindState, Message: msg} }
func Conflict(msg string) error       { return &Error{Kind: KindConflict, Message: msg} }

// Wrap attaches a cause to a classified error.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation, KindState, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-facing message for err. Unclassified errors
// never leak their text.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "internal server error"
}
