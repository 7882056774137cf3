package sync

import (
	"errors"
	"fmt"
)

// Code classifies failures crossing the use-case boundary.
type Code string

const (
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeJobNotFound Code = "SYNC_JOB_NOT_FOUND"
	CodeNotionAPI   Code = "NOTION_API_ERROR"
	CodeInternal    Code = "INTERNAL_ERROR"
)

// Error is a coded use-case error. Callers branch on Code; the wrapped
// cause stays reachable through errors.Is/As.
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

func validationErr(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundErr(jobID string) *Error {
	return &Error{Code: CodeJobNotFound, Message: fmt.Sprintf("sync job %s not found", jobID)}
}

func providerErr(msg string, cause error) *Error {
	return &Error{Code: CodeNotionAPI, Message: msg, cause: cause}
}

func internalErr(msg string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: msg, cause: cause}
}

// CodeOf extracts the code from an error chain, defaulting to INTERNAL_ERROR.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
