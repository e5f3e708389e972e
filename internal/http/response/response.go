// Package response writes the shelfd envelope from plain net/http handlers
// (the change stream and middleware) that do not go through huma.
package response

import (
	"encoding/json/v2"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cryptoshelf/shelfsync/internal/api/dto"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
)

// JSON writes data in a success envelope with the given status code.
func JSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	write(w, status, dto.Envelope[any]{
		V:       dto.EnvelopeVersion,
		Success: status < 400,
		Data:    data,
	}, logger)
}

// Success writes a 200 envelope.
func Success(w http.ResponseWriter, data any, logger *slog.Logger) {
	JSON(w, http.StatusOK, data, logger)
}

// Error writes err as an error envelope. Domain errors keep their code and
// map to its status; anything else is logged and reported as INTERNAL.
func Error(w http.ResponseWriter, err error, logger *slog.Logger) {
	var domainErr *domainerrors.Error
	if !errors.As(err, &domainErr) {
		if logger != nil {
			logger.Error("unhandled error", "error", err)
		}
		domainErr = domainerrors.Internal("internal server error")
	}
	write(w, domainErr.HTTPStatus(), dto.Envelope[any]{
		V: dto.EnvelopeVersion,
		Error: &dto.ErrorBody{
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
			Details: domainErr.Details,
		},
	}, logger)
}

func write(w http.ResponseWriter, status int, env dto.Envelope[any], logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.MarshalWrite(w, env); err != nil && logger != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
