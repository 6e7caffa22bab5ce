package handlers

import (
	"encoding/json"
	"net/http"
)

// apiError is the uniform JSON error body: a machine-readable code plus a
// human-readable message.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorResponse writes an apiError with the given status.
func ErrorResponse(w http.ResponseWriter, status int, code, message string) error {
	return WriteJSON(w, status, apiError{Error: code, Message: message})
}

// WriteJSON writes data as the JSON response body.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	return json.NewEncoder(w).Encode(data)
}
