// Package apperr carries HTTP-aware errors from handlers and services.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an expected failure that maps onto an HTTP status and a stable code.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

// New builds an Error with the given status, code and message.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Wrap attaches a cause to a new Error.
func Wrap(err error, status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BadRequest is shorthand for a 400 invalid_request.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, "invalid_request", message)
}

// NotFound is shorthand for a 404 not_found.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, "not_found", message)
}

// Forbidden is shorthand for a 403 forbidden.
func Forbidden(message string) *Error {
	return New(http.StatusForbidden, "forbidden", message)
}

// Upstream is shorthand for a 502 upstream_error.
func Upstream(err error, message string) *Error {
	return Wrap(err, http.StatusBadGateway, "upstream_error", message)
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
