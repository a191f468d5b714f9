// Package response writes the admin API envelope. Every response carries
// success and timestamp; successful responses put their payload in data
// and failures put a message in error.
package response

import (
	"encoding/json"
	"maps"
	"net/http"
	"time"

	"github.com/lane711/sonicjs/pkg/errors"
)

// Response is the admin API envelope.
type Response struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Details   any       `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Success wraps data in a successful envelope.
func Success(data any) Response {
	return Response{Success: true, Data: data, Timestamp: time.Now().UTC()}
}

// Fail builds a failed envelope. details may be nil.
func Fail(message string, details any) Response {
	return Response{Success: false, Error: message, Details: details, Timestamp: time.Now().UTC()}
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent, so an encoding failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a 200 envelope with data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Success(data))
}

// Created writes a 201 envelope with data.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Success(data))
}

// Fields writes a flat 200 envelope: success and timestamp alongside the
// given top-level fields. Some admin endpoints report results this way
// instead of nesting them under data.
func Fields(w http.ResponseWriter, fields map[string]any) {
	body := maps.Clone(fields)
	if body == nil {
		body = make(map[string]any, 2)
	}
	body["success"] = true
	body["timestamp"] = time.Now().UTC()
	JSON(w, http.StatusOK, body)
}

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, Fail(message, nil))
}

// Unauthorized writes a 401 error response.
func Unauthorized(w http.ResponseWriter, message string) {
	JSON(w, http.StatusUnauthorized, Fail(message, nil))
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, message string) {
	JSON(w, http.StatusNotFound, Fail(message, nil))
}

// MethodNotAllowed writes a 405 error response.
func MethodNotAllowed(w http.ResponseWriter, method string) {
	JSON(w, http.StatusMethodNotAllowed, Fail("Method "+method+" is not supported for this endpoint", nil))
}

// RateLimited writes a 429 error response.
func RateLimited(w http.ResponseWriter, message string) {
	JSON(w, http.StatusTooManyRequests, Fail("Rate limit exceeded: "+message, nil))
}

// InternalError writes a 500 error response without exposing err.
func InternalError(w http.ResponseWriter, _ error) {
	JSON(w, http.StatusInternalServerError, Fail("Internal server error", nil))
}

// ServiceUnavailable writes a 503 error response.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	JSON(w, http.StatusServiceUnavailable, Fail(message, nil))
}

// ErrorFromType maps typed errors to HTTP responses. Lookups of unknown
// resources are 404; invalid input and lifecycle rule violations are 400.
// Invalid input that carries details returns them alongside the message.
func ErrorFromType(w http.ResponseWriter, err error) {
	if details, ok := errors.Details(err); ok && errors.IsValidationError(err) {
		JSON(w, http.StatusBadRequest, Fail(err.Error(), details))
		return
	}

	var validationErr *errors.ValidationError
	switch {
	case errors.As(err, &validationErr):
		BadRequest(w, validationErr.Message)
	case errors.IsNotFound(err):
		NotFound(w, err.Error())
	case errors.IsValidationError(err), errors.IsAlreadyExists(err), errors.IsDomainRule(err):
		BadRequest(w, err.Error())
	default:
		InternalError(w, err)
	}
}
