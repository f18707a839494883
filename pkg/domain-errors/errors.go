// Package domainerrors defines coded domain errors. Services translate store
// sentinels and validation failures into these so transports can map them to
// status codes without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the domain failure kind.
type Code string

const (
	// Ledger failure kinds.
	CodeAlreadyRevealed  Code = "already_revealed"
	CodeDuplicateRequest Code = "duplicate_request"
	CodeUnknownRequest   Code = "unknown_request"
	CodeInvalidProof     Code = "invalid_proof"
	CodeMalformedPayload Code = "malformed_payload"
	CodeCategoryNotFound Code = "category_not_found"

	// Ambient kinds shared across features.
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeInternal     Code = "internal"
)

// Error carries a failure code plus a human-readable message. It wraps an
// optional cause so errors.Is/As keep working through service layers.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a domain error with the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a domain error that keeps its cause inspectable.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in the domain.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps domain codes to HTTP status codes for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeAlreadyRevealed, CodeDuplicateRequest:
		return http.StatusConflict
	case CodeUnknownRequest, CodeNotFound, CodeCategoryNotFound:
		return http.StatusNotFound
	case CodeInvalidProof, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeMalformedPayload, CodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
