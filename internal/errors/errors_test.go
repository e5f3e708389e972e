package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := NotFoundf("shelf %s", "s1")

	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrConflict))
	assert.Equal(t, "shelf s1", err.Error())
}

func TestError_WithCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := Unavailable("fetch shelves").WithCause(cause)

	assert.True(t, Is(err, ErrUnavailable))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "fetch shelves: dial tcp: refused", err.Error())
}

func TestError_WrappedStillMatches(t *testing.T) {
	err := fmt.Errorf("save slot: %w", ConstraintViolation("photo frame taken"))

	assert.True(t, Is(err, ErrConstraintViolation))
	assert.Equal(t, CodeConstraintViolation, CodeOf(err))
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("plain")))
}

func TestError_WithDetails(t *testing.T) {
	err := ValidationWithDetails("validation failed", map[string]string{"name": "is required"})

	var domainErr *Error
	require.True(t, As(err, &domainErr))
	assert.Equal(t, map[string]string{"name": "is required"}, domainErr.Details)

	copied := ErrValidation.WithDetails("x")
	assert.Nil(t, ErrValidation.Details)
	assert.Equal(t, "x", copied.Details)
}

func TestCode_HTTPStatusRoundTrip(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeForbidden, http.StatusForbidden},
		{CodeValidation, http.StatusBadRequest},
		{CodeConstraintViolation, http.StatusUnprocessableEntity},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.code.HTTPStatus())
			assert.Equal(t, tt.code, CodeFromStatus(tt.status))
		})
	}
}
