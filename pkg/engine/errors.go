package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass classifies an error for recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed
	// on a retry of the whole command. Examples: network errors reaching
	// the market API, a held state lock.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict indicates a shared-resource conflict, such as an
	// optimistic-concurrency mismatch on the state serial.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error: invalid
	// configuration, malformed spec, unknown address.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error is a classified error with resource and operation context.
type Error struct {
	Class     ErrorClass     `json:"class"`
	Message   string         `json:"message"`
	Code      string         `json:"code,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	Operation string         `json:"operation,omitempty"`
	Err       error          `json:"-"`
	Details   map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)
	if e.Resource != "" {
		fmt.Fprintf(&b, " (resource=%s", e.Resource)
		if e.Operation != "" {
			fmt.Fprintf(&b, ", operation=%s", e.Operation)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error { return e.Err }

// Is implements error equality for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithResource adds resource context to an error.
func (e *Error) WithResource(address string) *Error {
	e.Resource = address
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *Error {
	return &Error{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *Error {
	return &Error{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *Error {
	return &Error{Class: ErrorClassPermanent, Message: message, Err: err}
}

// IsTransient reports whether err is classified transient.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ErrorClassTransient
}

// IsPermanent reports whether err is classified permanent.
func IsPermanent(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ErrorClassPermanent
}

// Common error codes.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeCycle            = "DEPENDENCY_CYCLE"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeLocked           = "STATE_LOCKED"
	ErrCodeAgentFailed      = "AGENT_FAILED"
	ErrCodeDependencyFailed = "DEPENDENCY_FAILED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// CyclicDependencyError is returned by the scheduler when the actionable
// subset of a plan contains one or more dependency cycles. It names every
// address that could not be ordered, without attempting to pinpoint the
// minimal cycle.
type CyclicDependencyError struct {
	// Addresses lists every implicated resource address, sorted.
	Addresses []string
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle detected among: %s",
		strings.Join(e.Addresses, ", "))
}
