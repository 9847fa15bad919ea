package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexNotFound indicates that an extraction or reinsertion index does not address an element
	ErrIndexNotFound = errors.New("index not found")

	// ErrInvariantViolation indicates that a structural precondition of a reinsertion failed
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrDeliveryFailed indicates that a task could not deliver its result
	ErrDeliveryFailed = errors.New("result delivery failed")

	// ErrProcessingFailed indicates that a processing function returned an error
	ErrProcessingFailed = errors.New("processing failed")

	// ErrAliasedWorkItem indicates that two work items of one chunk touch the same location
	ErrAliasedWorkItem = errors.New("aliased work item")
)

// Error code constants
const (
	CodeUnknown            = "UNKNOWN_ERROR"
	CodeIndexNotFound      = "INDEX_NOT_FOUND"
	CodeInvariantViolation = "INVARIANT_VIOLATION"
	CodeDeliveryFailed     = "DELIVERY_FAILED"
	CodeProcessingFailed   = "PROCESSING_FAILED"
	CodeAliasedWorkItem    = "ALIASED_WORK_ITEM"
	CodeCancelled          = "CANCELLED"
)

// Error represents a structured error with a machine-readable code
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IndexNotFound builds an ErrIndexNotFound error describing the offending index.
func IndexNotFound(format string, args ...any) error {
	return NewError(CodeIndexNotFound, fmt.Sprintf(format, args...), ErrIndexNotFound)
}

// InvariantViolation builds an ErrInvariantViolation error describing the failed precondition.
func InvariantViolation(format string, args ...any) error {
	return NewError(CodeInvariantViolation, fmt.Sprintf(format, args...), ErrInvariantViolation)
}

// IsIndexNotFound checks if an error is an index-not-found error
func IsIndexNotFound(err error) bool {
	return errors.Is(err, ErrIndexNotFound)
}

// IsInvariantViolation checks if an error is an invariant violation
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// IsDeliveryFailure checks if an error reports a task that could not deliver its result
func IsDeliveryFailure(err error) bool {
	return errors.Is(err, ErrDeliveryFailed)
}
