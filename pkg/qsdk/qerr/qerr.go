package qerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents a stable error category that callers can switch on.
type Code string

const (
	CodeUnknown        Code = "unknown"
	CodeUnauthorized   Code = "unauthorized"
	CodeNotFound       Code = "not_found"
	CodeInvalidRequest Code = "invalid_request"
	CodeServer         Code = "server"
	CodeTransport      Code = "transport"
)

// Error is a simple value type that carries a Code plus the underlying error.
type Error struct {
	Code   Code
	Status int // HTTP status, 0 for transport failures
	err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// New wraps an error with the provided code. If err is nil a nil is returned.
func New(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, err: err}
}

// FromStatus classifies a non-2xx response.
func FromStatus(status int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	var code Code
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = CodeUnauthorized
	case status == http.StatusNotFound:
		code = CodeNotFound
	case status >= 400 && status < 500:
		code = CodeInvalidRequest
	case status >= 500:
		code = CodeServer
	default:
		code = CodeUnknown
	}
	return &Error{Code: code, Status: status, err: err}
}

// IsCode helps callers compare codes anywhere in the chain.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
