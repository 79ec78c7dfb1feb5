package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the uniform error body. Details carries per-field
// context for validation failures.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON encodes data as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes data with 200 OK.
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes 204 with an empty body.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, message string, details map[string]string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// WriteBadRequest writes a 400 with the given message.
func WriteBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message, nil)
}

// WriteValidationError writes a 400 for a request that parsed but failed
// validation.
func WriteValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message, nil)
}

// WriteNotFoundError writes a 404 with the given message.
func WriteNotFoundError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, message, nil)
}

// WriteInternalError writes a 500 carrying the error text.
func WriteInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, err.Error(), nil)
}

// WriteServiceUnavailable writes a 503. Used for dependency outages the
// caller should retry.
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, message, nil)
}

// WriteDetailedError writes an error body with per-field details attached.
func WriteDetailedError(w http.ResponseWriter, status int, err error, details map[string]string) {
	writeError(w, status, err.Error(), details)
}
