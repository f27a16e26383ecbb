package httpapi

import (
	"encoding/json"
	"net/http"

	"voiced/internal/manager"
	"voiced/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps manager errors to HTTP status codes. Unknown models are
// 404, things the caller can fix by loading or switching first are 409,
// stage timeouts are 504, and failures of the machinery behind the API
// (loads, fallback plans, generation) are 502.
func statusFor(err error) int {
	switch {
	case manager.IsUnknownModel(err):
		return http.StatusNotFound
	case manager.IsNotLoaded(err), manager.IsCapabilityUnavailable(err):
		return http.StatusConflict
	case manager.IsStageTimeout(err):
		return http.StatusGatewayTimeout
	case manager.IsFallbackExhausted(err), manager.IsLoadFailed(err), manager.IsGeneration(err):
		return http.StatusBadGateway
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeServiceError maps a service error to its status and writes the
// JSON envelope.
func writeServiceError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}
