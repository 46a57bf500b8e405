package protocol

import (
	"errors"
	"fmt"
)

// Code is the machine-readable class of a protocol error.
type Code string

const (
	// CodeValidation covers malformed input: missing or unknown fields,
	// wrong types, out-of-range values. Nothing was mutated.
	CodeValidation Code = "validation_error"
	// CodeNotFound covers unresolved task or verification-task IDs.
	CodeNotFound Code = "not_found"
	// CodeInvalidState covers rejected transitions, like re-marking a
	// done task done.
	CodeInvalidState Code = "invalid_state"
)

// Error is the single structured failure shape for all five operations.
// No operation surfaces an opaque failure: every rejection carries a code
// the caller can branch on and a message a human can read.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validationf builds a validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidStatef builds an invalid-state error.
func InvalidStatef(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a protocol error from any error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
