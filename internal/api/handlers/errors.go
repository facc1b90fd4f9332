package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is the JSON error body returned by every handler.
type APIError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// Error implements the error interface.
func (e APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// StatusCode returns the HTTP status code for this error.
func (e APIError) StatusCode() int {
	if e.Code == 0 {
		return http.StatusInternalServerError
	}
	return e.Code
}

// WithDetails returns a copy of the error with additional details.
func (e APIError) WithDetails(details string) APIError {
	e.Details = details
	return e
}

// WithField returns a copy of the error with a field name.
func (e APIError) WithField(field string) APIError {
	e.Field = field
	return e
}

var (
	ErrBadRequest = APIError{
		Code:    http.StatusBadRequest,
		Message: "Bad request",
	}
	ErrInvalidJSON = APIError{
		Code:    http.StatusBadRequest,
		Message: "Invalid JSON in request body",
	}
	ErrMissingField = APIError{
		Code:    http.StatusBadRequest,
		Message: "Required field is missing",
	}
	ErrInvalidField = APIError{
		Code:    http.StatusBadRequest,
		Message: "Invalid field value",
	}
	ErrNotMapped = APIError{
		Code:    http.StatusBadRequest,
		Message: "Team is not mapped",
	}

	ErrNotFound = APIError{
		Code:    http.StatusNotFound,
		Message: "Resource not found",
	}
	ErrTeamMappingNotFound = APIError{
		Code:    http.StatusNotFound,
		Message: "Team mapping not found",
	}

	ErrConflict = APIError{
		Code:    http.StatusConflict,
		Message: "Resource conflict",
	}
	ErrMigrationRunning = APIError{
		Code:    http.StatusConflict,
		Message: "Team migration is already running",
	}

	ErrInternal = APIError{
		Code:    http.StatusInternalServerError,
		Message: "An internal error occurred",
	}
	ErrDatabaseFetch = APIError{
		Code:    http.StatusInternalServerError,
		Message: "Failed to retrieve data",
	}
	ErrDatabaseSave = APIError{
		Code:    http.StatusInternalServerError,
		Message: "Failed to save data",
	}
	ErrDatabaseUpdate = APIError{
		Code:    http.StatusInternalServerError,
		Message: "Failed to update data",
	}
	ErrDatabaseDelete = APIError{
		Code:    http.StatusInternalServerError,
		Message: "Failed to delete data",
	}

	ErrClientNotConfigured = APIError{
		Code:    http.StatusServiceUnavailable,
		Message: "Source or destination client not configured",
	}
	ErrSourceUnavailable = APIError{
		Code:    http.StatusBadGateway,
		Message: "Source system request failed",
	}
)

// WriteError writes an APIError to the response writer.
func WriteError(w http.ResponseWriter, err APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode())
	_ = json.NewEncoder(w).Encode(err)
}

// WriteErrorFromErr writes err using its own status when it is an APIError
// and as a 500 otherwise.
func WriteErrorFromErr(w http.ResponseWriter, err error) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		WriteError(w, apiErr)
		return
	}
	WriteError(w, ErrInternal.WithDetails(err.Error()))
}
