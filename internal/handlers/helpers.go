package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/geminus/internal/validation"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes an error
// response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "method "+r.Method+" is not supported here")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// errorBody is the standard error envelope of the API.
type errorBody struct {
	Error     string                  `json:"error"`
	Message   string                  `json:"message"`
	Status    int                     `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Errors    []validation.FieldError `json:"errors,omitempty"`
}

// WriteError writes the standard error envelope.
func WriteError(w http.ResponseWriter, statusCode int, title, message string) error {
	return WriteJSON(w, statusCode, errorBody{
		Error:     title,
		Message:   message,
		Status:    statusCode,
		Timestamp: time.Now().UTC(),
	})
}

// WriteValidationError writes a 400 with per-field violation details.
func WriteValidationError(w http.ResponseWriter, err error) error {
	return WriteJSON(w, http.StatusBadRequest, errorBody{
		Error:     "Validation Failed",
		Message:   err.Error(),
		Status:    http.StatusBadRequest,
		Timestamp: time.Now().UTC(),
		Errors:    validation.FieldErrors(err),
	})
}
