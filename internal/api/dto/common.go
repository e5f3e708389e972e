// Package dto provides request and response types for the shelfd API.
// These types are used by huma to generate OpenAPI documentation and
// perform validation, and by the HTTP store client to decode responses.
package dto

// EnvelopeVersion is the current envelope format.
const EnvelopeVersion = 1

// Envelope wraps every JSON response body.
type Envelope[T any] struct {
	V       int        `json:"v"`
	Success bool       `json:"success"`
	Data    T          `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the error part of a failed response.
type ErrorBody struct {
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// TableParam is the path parameter naming a store table.
type TableParam struct {
	Table string `path:"table" enum:"profiles,accessories,themes,skins,shelves,shelf_items,reactions" doc:"Store table"`
}

// MessageResponse is a simple success message response.
type MessageResponse struct {
	Message string `json:"message" doc:"Success message"`
}
