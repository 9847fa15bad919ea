package errors

import (
	"context"
	"errors"
)

// Categorize maps an error to a standardized error code.
// Codes carried by *Error take precedence over sentinel matching.
func Categorize(err error) string {
	if err == nil {
		return ""
	}

	var coded *Error
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}

	switch {
	case errors.Is(err, ErrIndexNotFound):
		return CodeIndexNotFound
	case errors.Is(err, ErrInvariantViolation):
		return CodeInvariantViolation
	case errors.Is(err, ErrDeliveryFailed):
		return CodeDeliveryFailed
	case errors.Is(err, ErrAliasedWorkItem):
		return CodeAliasedWorkItem
	case errors.Is(err, ErrProcessingFailed):
		return CodeProcessingFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	}

	return CodeUnknown
}

// IsPermanent reports whether retrying the same work item could never succeed.
// Structural failures are permanent; processing failures and panics may be transient.
func IsPermanent(err error) bool {
	switch Categorize(err) {
	case CodeIndexNotFound, CodeInvariantViolation, CodeAliasedWorkItem:
		return true
	}
	return false
}
