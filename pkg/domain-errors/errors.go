// Package domainerrors defines the coded errors that cross service
// boundaries. Services translate store sentinels into these; the HTTP layer
// maps codes to statuses 1:1 and never invents its own.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure. The string value is the wire-level
// error code returned to clients.
type Code string

const (
	CodeValidation   Code = "validation_error"
	CodeBadRequest   Code = "bad_request"
	CodeNotFound     Code = "not_found"
	CodeInvalidState Code = "invalid_state"
	CodeExpired      Code = "expired"
	// CodeConflict is the replay case: the proof was already consumed.
	// Kept distinct from CodeInvalidState so clients can tell "someone
	// already used this" from "never approved".
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"
)

// Error carries a code plus a human-readable message, optionally wrapping a
// cause. Constructed via New or Wrap; compared via Is.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func New(code Code, message string) Error {
	return Error{Code: code, Message: message}
}

func Wrap(err error, code Code, message string) Error {
	return Error{Code: code, Message: message, cause: err}
}

func (e Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e Error) Unwrap() error { return e.cause }

// Is matches another Error by code. An empty message on the target acts as a
// wildcard so tests can assert on codes alone.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	if !ok {
		return false
	}
	if t.Message != "" && t.Message != e.Message {
		return false
	}
	return e.Code == t.Code
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de Error
	return errors.As(err, &de) && de.Code == code
}

// From extracts the coded error from err, defaulting to CodeInternal so
// unexpected failures never leak detail to callers.
func From(err error) Error {
	var de Error
	if errors.As(err, &de) {
		return de
	}
	return Error{Code: CodeInternal, Message: "internal error", cause: err}
}

// ToHTTPStatus maps an error code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest, CodeInvalidState, CodeExpired:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
