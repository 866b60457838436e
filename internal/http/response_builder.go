// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for JSON responses. Every
// handler writes through it so status codes, headers and the error
// envelope stay consistent.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fluxo/internal/core"
	"fluxo/internal/log"
)

// StatusClientClosedRequest is reported when the caller went away or the
// request was superseded before the store answered.
const StatusClientClosedRequest = 499

// KindBadRequest tags input the server could not parse at all. Parsed input
// that breaks a rule is core.KindValidation instead.
const KindBadRequest core.FailureKind = "bad_request"

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// ErrorBody is the envelope for every non-2xx response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Kind    core.FailureKind `json:"kind"`
	Message string           `json:"message"`
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.body != nil {
		_ = json.NewEncoder(w).Encode(b.body)
	}
}

// ErrorResponse creates a response carrying the error envelope.
func ErrorResponse(statusCode int, kind core.FailureKind, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: ErrorDetail{Kind: kind, Message: message}})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, KindBadRequest, message)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, KindBadRequest, "method not allowed")
}

// NotFoundError creates a 404 for routes that do not exist.
func NotFoundError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, core.KindNotFound, "route not found")
}

// TooManyRequestsError creates a 429 Too Many Requests error response.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, KindBadRequest, "rate limit exceeded, try again later")
}

// FailureResponse maps a service error onto its status code.
func FailureResponse(err error) *JSONResponseBuilder {
	f := core.AsFailure(err)
	return ErrorResponse(StatusFor(f.Kind), f.Kind, f.Message)
}

// StatusFor returns the HTTP status code for a failure kind.
func StatusFor(kind core.FailureKind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindCanceled:
		return StatusClientClosedRequest
	case KindBadRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeFailure logs store failures with their cause and writes the envelope.
func writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	f := core.AsFailure(err)
	if f.Kind == core.KindStore {
		cause := errors.Unwrap(f)
		if cause == nil {
			cause = f
		}
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldOperation, op,
			log.FieldFailureKind, string(f.Kind),
			log.FieldError, cause.Error())
	}
	FailureResponse(f).Write(w)
}
