// Handler helper functions: JSON responses and error-to-status mapping.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/matiasleandrokruk/notepilot/internal/domain/chain"
	"github.com/matiasleandrokruk/notepilot/internal/domain/model"
)

const headerContentType = "Content-Type"

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set(headerContentType, "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set(headerContentType, "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		http.Error(w, `{"error":"failed to encode error response"}`, http.StatusInternalServerError)
	}
}

// statusForError maps domain errors onto HTTP status codes. Unknown errors
// stay 500 so handlers never leak an accidental success code.
func statusForError(err error) int {
	var validationErr *model.ValidationError
	var constructionErr *model.ConstructionError
	switch {
	case errors.Is(err, model.ErrNoSuchModel):
		return http.StatusNotFound
	case errors.Is(err, model.ErrMissingCredential):
		return http.StatusUnprocessableEntity
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, chain.ErrUnsupportedChainType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, chain.ErrRetrievalUnavailable):
		return http.StatusConflict
	case errors.As(err, &constructionErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError maps err to a status via statusForError and writes it.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}
