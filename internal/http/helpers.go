package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"taxprep/internal/core"
	"taxprep/internal/filing"
	"taxprep/internal/importer"
	"taxprep/internal/log"
	"taxprep/internal/store"
	"taxprep/internal/tax"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps domain and store errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *filing.ValidationError
	var cerr *tax.CalculationError

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNoResults):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrCompleted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: verr.Reason, Field: verr.Field})
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: cerr.Error(), Field: string(cerr.Stage)})
	case errors.Is(err, tax.ErrUnsupportedYear),
		errors.Is(err, importer.ErrNoTransactions),
		errors.Is(err, importer.ErrInconsistent):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Unhandled service error",
			log.FieldError, err,
			log.FieldPath, r.URL.Path,
			log.FieldComponent, log.ComponentHTTP,
			"error_type", log.ErrorTypeInternal)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrInvalidFilingStatus,
		core.ErrInvalidTaxYear,
		core.ErrInvalidIncomeKind,
		core.ErrEmptyDescription,
		core.ErrInvalidAmount,
		core.ErrInvalidDependents,
		core.ErrInvalidCostShare,
		core.ErrNegativePayment,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid return id")
		return 0, false
	}
	return id, true
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
