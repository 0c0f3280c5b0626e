package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/dental-agenda/internal/agenda"
	"github.com/wolfman30/dental-agenda/internal/clinicapi"
	"github.com/wolfman30/dental-agenda/internal/session"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps a domain or backend error onto an HTTP status.
func statusFor(err error) int {
	var valErr *clinicapi.ValidationError
	var srvErr *clinicapi.ServerError
	var netErr *clinicapi.NetworkError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &valErr):
		if valErr.StatusCode >= 400 && valErr.StatusCode < 500 {
			return valErr.StatusCode
		}
		return http.StatusBadRequest
	case errors.As(err, &srvErr), errors.As(err, &netErr):
		return http.StatusBadGateway
	case errors.Is(err, agenda.ErrSyncBusy):
		return http.StatusConflict
	case errors.Is(err, agenda.ErrTransitionNotAllowed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, agenda.ErrAppointmentNotFound), errors.Is(err, clinicapi.ErrMissingAppointmentID):
		return http.StatusNotFound
	case errors.Is(err, agenda.ErrBoardClosed), errors.Is(err, session.ErrNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrInvalidCredentials), errors.Is(err, session.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor picks the text shown to the user: backend detail first, then a
// fixed message for known conditions, then fallback.
func messageFor(err error, fallback string) string {
	var valErr *clinicapi.ValidationError
	switch {
	case errors.As(err, &valErr):
		return clinicapi.ErrorMessage(err, fallback)
	case errors.Is(err, agenda.ErrSyncBusy):
		return "A sync is already in progress"
	case errors.Is(err, agenda.ErrTransitionNotAllowed):
		return "This action is not available for the appointment's current status"
	case errors.Is(err, agenda.ErrAppointmentNotFound):
		return "Appointment not found in the current list"
	case errors.Is(err, agenda.ErrBoardClosed), errors.Is(err, session.ErrNotFound):
		return "Session ended"
	case errors.Is(err, session.ErrInvalidCredentials):
		return "Invalid email or password"
	default:
		return fallback
	}
}

func writeError(w http.ResponseWriter, err error, fallback string) {
	writeJSON(w, statusFor(err), ErrorResponse{
		Error:     messageFor(err, fallback),
		Retryable: clinicapi.IsRetryable(err),
	})
}
