// Package types holds the JSON shapes shared by the API handlers and
// middleware.
package types

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message. It never contains
	// record contents.
	Message string `json:"message"`

	// Type categorizes the error; see the ErrorType constants.
	Type string `json:"type"`

	// Param is the request field that caused the error, if any.
	Param string `json:"param,omitempty"`
}

// Error types and the status each one is sent with.
const (
	ErrorTypeInvalidRequest   = "invalid_request_error" // 400
	ErrorTypeAuthentication   = "authentication_error"  // 401
	ErrorTypeNotFound         = "not_found"             // 404
	ErrorTypeConflict         = "conflict"              // 409
	ErrorTypePayloadTooLarge  = "payload_too_large"     // 413
	ErrorTypeServerError      = "server_error"          // 500
	ErrorTypeMethodNotAllowed = "method_not_allowed"    // 405
)

var statusByType = map[string]int{
	ErrorTypeInvalidRequest:   http.StatusBadRequest,
	ErrorTypeAuthentication:   http.StatusUnauthorized,
	ErrorTypeNotFound:         http.StatusNotFound,
	ErrorTypeConflict:         http.StatusConflict,
	ErrorTypePayloadTooLarge:  http.StatusRequestEntityTooLarge,
	ErrorTypeServerError:      http.StatusInternalServerError,
	ErrorTypeMethodNotAllowed: http.StatusMethodNotAllowed,
}

// NewErrorResponse creates an error response.
func NewErrorResponse(errType, message, param string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{Message: message, Type: errType, Param: param}}
}

// StatusCode returns the HTTP status for the response's error type.
func (e *ErrorResponse) StatusCode() int {
	if code, ok := statusByType[e.Error.Type]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// WriteError writes resp with its status code.
func WriteError(w http.ResponseWriter, resp *ErrorResponse) {
	WriteJSON(w, resp.StatusCode(), resp)
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
