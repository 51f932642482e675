// Package apperr is the error taxonomy shared by the service and handler
// layers. Every business failure carries a Kind that maps to one HTTP status.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindChannelUnavailable Kind = "channel_unavailable"
	KindInvalidTransition  Kind = "invalid_transition"
	KindBusinessRule       Kind = "business_rule"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindConflict           Kind = "conflict"
)

// Kind sentinels. errors.Is(err, apperr.NotFound) matches any error of that kind.
var (
	Validation         = &Error{Kind: KindValidation}
	NotFound           = &Error{Kind: KindNotFound}
	ChannelUnavailable = &Error{Kind: KindChannelUnavailable}
	InvalidTransition  = &Error{Kind: KindInvalidTransition}
	BusinessRule       = &Error{Kind: KindBusinessRule}
	Unauthorized       = &Error{Kind: KindUnauthorized}
	Forbidden          = &Error{Kind: KindForbidden}
	Conflict           = &Error{Kind: KindConflict}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap attaches a kind and a caller-facing message to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Kind)
	case e.Message == "":
		return e.Err.Error()
	case e.Err == nil:
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare kind sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in the chain, or "" when
// err carries no kind (an internal failure).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to its response status. Unknown errors are 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindChannelUnavailable, KindInvalidTransition, KindBusinessRule:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
