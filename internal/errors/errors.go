package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Gateway failure taxonomy. Handlers map these onto HTTP statuses:
// invalid request → 400, unauthorized → 401, unsupported surface → 501,
// everything upstream-related → 502.
var (
	ErrInvalidRequest     = errors.New("message content must be a string or an array of content parts")
	ErrUnauthorized       = errors.New("Unauthorized")
	ErrUnsupportedSurface = errors.New("Provider uses Chat Completions; /v1/responses not supported for this provider")
)

type errorBody struct {
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// WriteJSONError writes the uniform error envelope used by every
// synchronous failure path: {"error":{"message":<message>}}.
func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{Message: message}})
}
