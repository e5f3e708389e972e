package api

import (
	"encoding/json/v2"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoshelf/shelfsync/internal/api/dto"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/logger"
	"github.com/cryptoshelf/shelfsync/internal/ratelimit"
)

func TestEnvelopeTransformer_AlwaysIncludesVersion(t *testing.T) {
	tests := []struct {
		name   string
		status string
		input  any
	}{
		{name: "success response", status: "200", input: map[string]string{"key": "value"}},
		{name: "no content response", status: "204", input: nil},
		{name: "plain error", status: "400", input: errors.New("invalid input")},
		{name: "api error", status: "409", input: &APIError{Code: "CONFLICT", Message: "exists"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EnvelopeTransformer(nil, tt.status, tt.input)
			require.NoError(t, err)

			raw, err := json.Marshal(result)
			require.NoError(t, err)

			var envelope map[string]any
			require.NoError(t, json.Unmarshal(raw, &envelope))
			assert.Equal(t, float64(dto.EnvelopeVersion), envelope["v"])
			assert.NotContains(t, envelope, "version")
		})
	}
}

func TestEnvelopeTransformer_SuccessResponse(t *testing.T) {
	data := map[string]string{"name": "night"}

	result, err := EnvelopeTransformer(nil, "200", data)
	require.NoError(t, err)

	envelope, ok := result.(dto.Envelope[any])
	require.True(t, ok)
	assert.True(t, envelope.Success)
	assert.Equal(t, data, envelope.Data)
	assert.Nil(t, envelope.Error)
}

func TestEnvelopeTransformer_ErrorResponse(t *testing.T) {
	result, err := EnvelopeTransformer(nil, "404", errors.New("gone"))
	require.NoError(t, err)

	envelope, ok := result.(dto.Envelope[any])
	require.True(t, ok)
	assert.False(t, envelope.Success)
	assert.Nil(t, envelope.Data)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, string(domainerrors.CodeNotFound), envelope.Error.Code)
	assert.Equal(t, "gone", envelope.Error.Message)
}

func TestEnvelopeTransformer_ErrorWithDetails(t *testing.T) {
	result, err := EnvelopeTransformer(nil, "400", &APIError{
		Code:    string(domainerrors.CodeValidation),
		Message: "invalid shelf",
		Details: map[string]string{"user_id": "required"},
	})
	require.NoError(t, err)

	envelope := result.(dto.Envelope[any])
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "VALIDATION", envelope.Error.Code)
	assert.Equal(t, map[string]string{"user_id": "required"}, envelope.Error.Details)
}

func TestToAPIError(t *testing.T) {
	err := toAPIError(domainerrors.ConstraintViolation("slot out of range"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.GetStatus())
	assert.Equal(t, "CONSTRAINT_VIOLATION", apiErr.Code)

	err = toAPIError(errors.New("driver exploded"))
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.GetStatus())
	assert.Equal(t, "internal server error", apiErr.Message)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{name: "forwarded chain", remote: "10.0.0.1:1234", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, want: "203.0.113.7"},
		{name: "real ip", remote: "10.0.0.1:1234", headers: map[string]string{"X-Real-IP": "198.51.100.2"}, want: "198.51.100.2"},
		{name: "remote with port", remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "ipv6 remote", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "remote without port", remote: "192.0.2.9", want: "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getClientIP(tt.remote, func(k string) string { return tt.headers[k] })
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.New(0.001, 1)
	defer limiter.Stop()

	h := RateLimitMiddleware(limiter, "stream", logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/changes", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"RATE_LIMITED"`)

	// Another client has its own bucket.
	other := httptest.NewRequest(http.MethodGet, "/api/v1/changes", nil)
	other.RemoteAddr = "198.51.100.4:9999"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
