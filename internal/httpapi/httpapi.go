// Package httpapi exposes the service facade over HTTP: request decoding,
// the six-item error taxonomy from spec §7 mapped to status codes, and the
// chi router wiring (request ID, recoverer, timeout, CORS, rate limiting).
package httpapi

import (
	"errors"
	"net/http"

	"github.com/codeforge-rag/service/internal/forge"
	"github.com/codeforge-rag/service/internal/service"
	"github.com/codeforge-rag/service/internal/vectorstore"
)

// apiError carries the HTTP status a handler should return alongside a
// human-readable message, per the taxonomy in spec §7.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string { return e.Message }

// classifyError maps a domain error to the status code spec §7 documents.
// Recoverable failures (per-file fetch skips, empty retrieval) never reach
// here as errors — they are handled as degraded-success bodies upstream.
func classifyError(err error) *apiError {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return &apiError{Status: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, vectorstore.ErrInsufficientCapacity):
		return &apiError{
			Status:  http.StatusInsufficientStorage,
			Message: "vector store has no capacity for a new collection; retry once an existing one is freed or route this repo to the shared index",
		}
	default:
		var gwErr *forge.GatewayError
		if errors.As(err, &gwErr) {
			return &apiError{Status: http.StatusBadGateway, Message: err.Error()}
		}
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
}

// errorBody is the JSON shape returned for any non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}
