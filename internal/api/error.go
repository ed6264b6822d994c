package api

import (
	"errors"
	"log/slog"
	"net/http"
)

type Error struct {
	statusCode  int
	description string
}

func (err Error) Error() string {
	return err.description
}

func (err Error) StatusCode() int {
	return err.statusCode
}

func NewError(status int, description string) Error {
	return Error{
		statusCode:  status,
		description: description,
	}
}

// WriteError writes the uniform failure body. Errors that are not an Error are reported
// with their own message and an internal error status.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr Error
	if !errors.As(err, &apiErr) {
		apiErr = Error{statusCode: http.StatusInternalServerError, description: err.Error()}
	}

	slog.ErrorContext(r.Context(), "request failed", "error", err, "status", apiErr.statusCode)
	WriteJSON(w, ErrorResponse{
		Success: false,
		Error:   apiErr.description,
	}, apiErr.statusCode)
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
