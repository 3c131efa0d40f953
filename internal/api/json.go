package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/intentmarket/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  uint32 `json:"code,omitempty" example:"6001"`
	Name  string `json:"name,omitempty" example:"Unauthorized"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps a ledger error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalidStatus),
		errors.Is(err, apperr.ErrInvalidScore),
		errors.Is(err, apperr.ErrIntentNotFound),
		errors.Is(err, apperr.ErrSelfMatch),
		errors.Is(err, apperr.ErrFieldTooLong),
		errors.Is(err, apperr.ErrInvalidAccount),
		errors.Is(err, apperr.ErrUnknownInstruction):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs unexpected failures and writes the mapped error body.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	body := errorBody(err.Error())
	var pe *apperr.ProgramError
	if errors.As(err, &pe) {
		body.Code, body.Name = pe.Code, pe.Name
	}
	writeJSON(w, status, body)
}
