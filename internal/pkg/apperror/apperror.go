// Package apperror defines the error taxonomy shared by the payment, fulfillment
// and refund packages and its mapping onto HTTP status codes.
package apperror

import (
	"errors"
	"net/http"
)

// Kind classifies an error by how the request that produced it must be answered.
type Kind string

const (
	KindAuthentication Kind = "authentication_failure"
	KindAuthorization  Kind = "authorization_failure"
	KindValidation     Kind = "validation_failure"
	KindBusinessRule   Kind = "business_rule_violation"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "storage_conflict"
	KindTransient      Kind = "transient_downstream_failure"
	KindInternal       Kind = "internal_error"
)

// Error is a classified error carrying a human readable message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New creates a classified error. Code is the short machine readable identifier
// returned in JSON bodies.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, code string, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same code, so sentinels work with errors.Is
// even after being wrapped with extra context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error onto the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation, KindBusinessRule:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine readable code, "internal_error" for unclassified errors.
func Code(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return string(KindInternal)
}

// Message returns the user facing message. Unclassified errors are not exposed.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}
