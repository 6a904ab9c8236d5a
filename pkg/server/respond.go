package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spendsense/spendsense/pkg/ledger"
	"github.com/spendsense/spendsense/pkg/logging"
	"github.com/spendsense/spendsense/pkg/parser"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorBody{Status: "error", Message: message})
}

// decodeJSON reads a JSON request body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, verr.Error())
	case errors.Is(err, ledger.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Expense not found.")
	case errors.Is(err, ledger.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "You can only change your own expenses.")
	case errors.Is(err, ledger.ErrAlreadyRegistered):
		writeError(w, r, http.StatusConflict, "Phone number already registered. Please login.")
	case errors.Is(err, ledger.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "Incorrect password. Please try again.")
	case errors.Is(err, ledger.ErrUnknownPhone):
		writeError(w, r, http.StatusNotFound, "Phone number not registered. Please create an account.")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusServiceUnavailable, "request timed out")
	case errors.Is(err, parser.ErrCategorize):
		writeError(w, r, http.StatusUnprocessableEntity, "Could not categorize")
	case errors.Is(err, parser.ErrNoPatternMatch):
		writeError(w, r, http.StatusUnprocessableEntity, "Could not parse transaction")
	default:
		logging.FromContext(r.Context()).Error("request failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
