// Package apperr provides a structured error taxonomy: a code, a human
// message, and a Retryable flag readable via IsRetryable without string
// matching. No other package in this module imports it; components
// return plain wrapped errors, and the queue consumer retries every handler
// error alike.
package apperr

import (
	"errors"
	"fmt"
)

// Error codes, one per taxonomy entry.
const (
	CodeParseError     = "PARSE_ERROR"
	CodeDuplicate      = "DUPLICATE"
	CodeTransient      = "TRANSIENT_INFRA_ERROR"
	CodePermanent      = "PERMANENT_PERSISTENCE_ERROR"
	CodeModelError     = "MODEL_ERROR"
	CodeSearchInput    = "SEARCH_INPUT_ERROR"
	CodeTenantMismatch = "TENANT_MISMATCH"
	CodeNotFound       = "NOT_FOUND"
	CodeInternal       = "INTERNAL_ERROR"
)

// AppError is a structured application error.
type AppError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"-"`
	Details   map[string]any `json:"details,omitempty"`
	Err       error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New constructs a non-retryable AppError.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap constructs a non-retryable AppError wrapping err.
func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Parse builds a parse-error: malformed messages are dropped, never counted
// against the failed counter.
func Parse(reason string) *AppError {
	return &AppError{Code: CodeParseError, Message: reason}
}

// Duplicate marks a message_id collision within a tenant — treated as a
// successful no-op by callers, never a failure.
func Duplicate(messageID string) *AppError {
	return &AppError{Code: CodeDuplicate, Message: "duplicate message_id", Details: map[string]any{"message_id": messageID}}
}

// Transient marks a retryable infrastructure failure (timeout, 5xx).
func Transient(op string, err error) *AppError {
	return &AppError{Code: CodeTransient, Message: fmt.Sprintf("transient error during %s", op), Retryable: true, Err: err}
}

// Permanent marks a non-retryable persistence failure (e.g. a constraint
// violation after the owning source was deleted).
func Permanent(op string, err error) *AppError {
	return &AppError{Code: CodePermanent, Message: fmt.Sprintf("permanent persistence error during %s", op), Err: err}
}

// Model marks an embedding or rerank call failure; callers fall back to a
// neutral default and continue rather than fail the message.
func Model(op string, err error) *AppError {
	return &AppError{Code: CodeModelError, Message: fmt.Sprintf("model runtime error during %s", op), Err: err}
}

// SearchInput marks a rejected query (empty or whitespace-only).
func SearchInput(reason string) *AppError {
	return &AppError{Code: CodeSearchInput, Message: reason}
}

// TenantMismatch marks an operation that referenced an entity owned by a
// different tenant; surfaced to callers as not-found.
func TenantMismatch(entity string) *AppError {
	return &AppError{Code: CodeTenantMismatch, Message: fmt.Sprintf("%s not owned by tenant", entity)}
}

func NotFound(resource string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func Internal(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message}
}

func InternalWithError(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "internal error", Err: err}
}

// IsRetryable reports whether err (or an AppError it wraps) should be retried
// by the queue runtime rather than counted as a permanent failure.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// AsAppError unwraps err into an *AppError, wrapping it as an internal error
// if it isn't already one.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

// IsCode reports whether err (or a wrapped AppError) carries the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
