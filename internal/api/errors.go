package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/listenupapp/transcript-server/internal/errors"
)

// APIError is the huma.StatusError every handler failure becomes. The
// envelope transformer reads Code and Details from it.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

func (e *APIError) Error() string { return e.Message }

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int { return e.status }

// ContentType implements huma.ContentTypeFilter.
func (e *APIError) ContentType(string) string { return "application/json" }

// codeForStatus names the domain code for errors huma raises itself.
var codeForStatus = map[int]domainerrors.Code{
	http.StatusBadRequest:          domainerrors.CodeValidation,
	http.StatusUnprocessableEntity: domainerrors.CodeValidation,
	http.StatusNotFound:            domainerrors.CodeNotFound,
	http.StatusMethodNotAllowed:    domainerrors.CodeNotFound,
	http.StatusTooManyRequests:     domainerrors.CodeRateLimited,
	http.StatusServiceUnavailable:  domainerrors.CodeUnavailable,
}

// RegisterErrorHandler replaces huma.NewError so domain errors keep their
// code and status. It must run before routes are registered.
func RegisterErrorHandler() {
	huma.NewError = newAPIError
}

func newAPIError(status int, message string, errs ...error) huma.StatusError {
	for _, err := range errs {
		var domainErr *domainerrors.Error
		if errors.As(err, &domainErr) {
			return &APIError{
				status:  domainErr.HTTPStatus(),
				Code:    string(domainErr.Code),
				Message: domainErr.Message,
				Details: domainErr.Details,
			}
		}
	}

	fields := fieldErrors(errs)
	// Huma reports request validation failures as 422; clients get 400 like
	// every other VALIDATION error.
	if status == http.StatusUnprocessableEntity && len(errs) > 0 {
		status = http.StatusBadRequest
	}

	code, ok := codeForStatus[status]
	if !ok {
		code = domainerrors.CodeInternal
	}
	apiErr := &APIError{status: status, Code: string(code), Message: message}
	if len(fields) > 0 {
		apiErr.Details = fields
	}
	return apiErr
}

// fieldErrors collects huma's per-field messages keyed by location.
func fieldErrors(errs []error) map[string]string {
	fields := make(map[string]string)
	for _, err := range errs {
		var detail *huma.ErrorDetail
		if errors.As(err, &detail) && detail.Location != "" {
			fields[detail.Location] = detail.Message
		}
	}
	return fields
}
