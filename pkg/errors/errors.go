package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used across the service. Per-item errors carry InvalidInput,
// outbound I/O failures carry TransportError, state save/load failures carry
// PersistenceError and malformed inbound callbacks carry ProtocolError.
const (
	CodeInvalidInput     = "InvalidInput"
	CodeTransportError   = "TransportError"
	CodePersistenceError = "PersistenceError"
	CodeProtocolError    = "ProtocolError"
	CodeUnauthorized     = "Unauthorized"
	CodeInternalError    = "InternalError"
)

// StandardError represents a standardized error response
type StandardError struct {
	Code    string `json:"error"`   // Error code/type (e.g., "InvalidInput", "TransportError")
	Message string `json:"message"` // Human-readable error message
	Details string `json:"details"` // Additional details (field name, upstream error, etc.)
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for the error
func (e *StandardError) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidInput, CodeProtocolError:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTransportError:
		return http.StatusBadGateway
	case CodePersistenceError, CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewStandardError creates a new StandardError
func NewStandardError(errorCode, message, details string) *StandardError {
	return &StandardError{
		Code:    errorCode,
		Message: message,
		Details: details,
	}
}

// NewInvalidInput marks a single bad item; the batch continues.
func NewInvalidInput(message string) *StandardError {
	return NewStandardError(CodeInvalidInput, message, "")
}

// NewTransportError wraps a failed notification or fulfillment call.
func NewTransportError(operation string, err error) *StandardError {
	return NewStandardError(CodeTransportError, fmt.Sprintf("transport call failed: %s", operation), errDetails(err))
}

// NewPersistenceError wraps a failed state save or load.
func NewPersistenceError(operation string, err error) *StandardError {
	return NewStandardError(CodePersistenceError, fmt.Sprintf("persistence failed: %s", operation), errDetails(err))
}

// NewProtocolError marks a malformed inbound callback.
func NewProtocolError(message string) *StandardError {
	return NewStandardError(CodeProtocolError, message, "")
}

// Code extracts the error code from err, or CodeInternalError for plain errors.
func Code(err error) string {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternalError
}

// Is reports whether err carries the given error code.
func Is(err error, code string) bool {
	return Code(err) == code
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
