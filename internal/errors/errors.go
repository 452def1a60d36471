// Package errors provides coded domain errors for transcript indexing and retrieval.
//
// Producers return the sentinels or a constructor; callers match with Is,
// which compares codes, or read the code with CodeOf:
//
//	if errors.Is(err, errors.ErrIndexNotFound) {
//	    // build first
//	}
//	if errors.CodeOf(err).Retryable() {
//	    // rerun the whole build
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Stdlib helpers, so callers need only this package.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
	New  = errors.New
)

// Code is a machine-readable error code, also sent to API clients.
type Code string

const (
	CodeEmptyTranscript Code = "EMPTY_TRANSCRIPT"
	CodeIndexNotFound   Code = "INDEX_NOT_FOUND"
	CodeIndexBuild      Code = "INDEX_BUILD"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidation      Code = "VALIDATION"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeInternal        Code = "INTERNAL"
)

var statusByCode = map[Code]int{
	CodeEmptyTranscript: http.StatusUnprocessableEntity,
	CodeIndexNotFound:   http.StatusNotFound,
	CodeNotFound:        http.StatusNotFound,
	CodeValidation:      http.StatusBadRequest,
	CodeRateLimited:     http.StatusTooManyRequests,
	CodeUnavailable:     http.StatusServiceUnavailable,
}

// HTTPStatus maps the code to a response status; unknown codes are 500.
func (c Code) HTTPStatus() int {
	if status, ok := statusByCode[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the failed operation may be rerun unchanged.
// A build replaces both stores whole, so INDEX_BUILD qualifies.
func (c Code) Retryable() bool {
	return c == CodeIndexBuild || c == CodeUnavailable
}

// Error is a domain error. Details is serialized to API clients as-is.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HTTPStatus returns the status for e's code.
func (e *Error) HTTPStatus() int { return e.Code.HTTPStatus() }

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Sentinels for Is.
var (
	ErrEmptyTranscript = &Error{Code: CodeEmptyTranscript, Message: "no captions available"}
	ErrIndexNotFound   = &Error{Code: CodeIndexNotFound, Message: "transcript not indexed"}
	ErrIndexBuild      = &Error{Code: CodeIndexBuild, Message: "index build failed"}
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation      = &Error{Code: CodeValidation, Message: "validation error"}
	ErrRateLimited     = &Error{Code: CodeRateLimited, Message: "rate limited"}
	ErrUnavailable     = &Error{Code: CodeUnavailable, Message: "unavailable"}
)

func EmptyTranscript(msg string) *Error { return &Error{Code: CodeEmptyTranscript, Message: msg} }
func Validation(msg string) *Error      { return &Error{Code: CodeValidation, Message: msg} }
func RateLimited(msg string) *Error     { return &Error{Code: CodeRateLimited, Message: msg} }
func Unavailable(msg string) *Error     { return &Error{Code: CodeUnavailable, Message: msg} }

// ValidationWithDetails is Validation carrying per-field messages.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Validationf formats a VALIDATION message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf formats a NOT_FOUND message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// IndexNotFound reports that transcriptID has no index.
func IndexNotFound(transcriptID string) *Error {
	return &Error{
		Code:    CodeIndexNotFound,
		Message: fmt.Sprintf("transcript %q is not indexed", transcriptID),
		Details: map[string]string{"transcript_id": transcriptID},
	}
}

// IndexBuild wraps the store failure that aborted a build of transcriptID.
func IndexBuild(transcriptID string, err error) *Error {
	return &Error{
		Code:    CodeIndexBuild,
		Message: fmt.Sprintf("build index for transcript %q", transcriptID),
		Details: map[string]string{"transcript_id": transcriptID},
		cause:   err,
	}
}

// Wrap attaches a code and message to err.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// CodeOf returns the code of the first *Error in err's chain, or INTERNAL.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}
