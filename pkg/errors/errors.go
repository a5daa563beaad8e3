package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code, so callers can use errors.Is against the predefined values
// even after Clone or WithReason.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// ErrCacheMiss is returned by cache repositories when no value is stored for a key.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Makeup engine taxonomy.
var (
	ErrDeadlineUnreachable = New("DEADLINE_UNREACHABLE", http.StatusInternalServerError, "no usable day found within the search horizon")
	ErrInvalidDestination  = New("INVALID_DESTINATION", http.StatusUnprocessableEntity, "destination date or slot is not bookable")
	ErrDuplicateRequest    = New("DUPLICATE_REQUEST", http.StatusConflict, "an open reschedule request already exists for this class")
	ErrSlotFull            = New("SLOT_FULL", http.StatusConflict, "slot has no free seat on this date")
	ErrCreditExhausted     = New("CREDIT_EXHAUSTED", http.StatusConflict, "credit has no remaining quantity")
	ErrCreditExpired       = New("CREDIT_EXPIRED", http.StatusGone, "credit is not valid for this date")
	ErrLedgerIntegrity     = New("LEDGER_INTEGRITY", http.StatusInternalServerError, "credit counter does not match its usage ledger")
	ErrInvalidTransition   = New("INVALID_TRANSITION", http.StatusConflict, "status transition not allowed")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithReason clones err and attaches a machine readable reason code.
func WithReason(err *Error, reason string) *Error {
	clone := Clone(err, "")
	if clone != nil {
		clone.Reason = reason
	}
	return clone
}

// ReasonOf extracts the reason code from err, if any.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
