package api

import (
	"errors"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/cryptoshelf/shelfsync/internal/api/dto"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
)

// EnvelopeTransformer wraps every huma response body in dto.Envelope.
// Errors go to the error field, everything else to data.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	code, _ := strconv.Atoi(status)

	var apiErr *APIError
	if err, ok := v.(error); ok {
		if !errors.As(err, &apiErr) {
			apiErr = &APIError{status: code, Message: err.Error()}
		}
	}
	if apiErr == nil && code >= 400 {
		apiErr = &APIError{status: code, Message: "request failed"}
	}

	if apiErr != nil {
		errCode := apiErr.Code
		if errCode == "" {
			errCode = string(domainerrors.CodeFromStatus(code))
		}
		return dto.Envelope[any]{
			V: dto.EnvelopeVersion,
			Error: &dto.ErrorBody{
				Code:    errCode,
				Message: apiErr.Message,
				Details: apiErr.Details,
			},
		}, nil
	}

	return dto.Envelope[any]{
		V:       dto.EnvelopeVersion,
		Success: true,
		Data:    v,
	}, nil
}
