package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
)

// APIError implements huma.StatusError. It carries a domain error code to
// the client.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler makes huma report domain errors with their own code
// and status. Request validation failures become VALIDATION errors. Call it
// before serving.
func RegisterErrorHandler() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		for _, err := range errs {
			var domainErr *domainerrors.Error
			if errors.As(err, &domainErr) {
				return fromDomain(domainErr)
			}
		}

		if status == http.StatusUnprocessableEntity {
			// huma rejects malformed requests with 422.
			status = http.StatusBadRequest
			return &APIError{
				status:  status,
				Code:    string(domainerrors.CodeValidation),
				Message: message,
				Details: errorDetails(errs),
			}
		}

		return &APIError{
			status:  status,
			Code:    string(domainerrors.CodeFromStatus(status)),
			Message: message,
			Details: errorDetails(errs),
		}
	}
}

// toAPIError converts an error returned by the store into the response
// error. Errors without a domain code are internal.
func toAPIError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		return fromDomain(domainErr)
	}
	return &APIError{
		status:  http.StatusInternalServerError,
		Code:    string(domainerrors.CodeInternal),
		Message: "internal server error",
	}
}

func fromDomain(e *domainerrors.Error) *APIError {
	return &APIError{
		status:  e.HTTPStatus(),
		Code:    string(e.Code),
		Message: e.Message,
		Details: e.Details,
	}
}

func errorDetails(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err.Error())
		}
	}
	return out
}
