package v1

import (
	"errors"
	"net/http"

	"github.com/gobooks/ledger/internal/errs"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func badRequest(w http.ResponseWriter, msg string) {
	toJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// writeError maps domain sentinels onto HTTP statuses. Unknown errors are
// reported as 500 without leaking internals.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		toJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Code: "not_found"})
	case errors.Is(err, errs.ErrForbidden):
		toJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden", Code: "forbidden"})
	case errors.Is(err, errs.ErrInvalid):
		toJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid"})
	case errors.Is(err, errs.ErrUnbalancedEntry):
		toJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "unbalanced_entry"})
	case errors.Is(err, errs.ErrInvalidLine):
		toJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "invalid_line"})
	case errors.Is(err, errs.ErrClosedPeriod):
		toJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "closed_period"})
	case errors.Is(err, errs.ErrMissingRate):
		toJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "missing_rate"})
	case errors.Is(err, errs.ErrSequenceExhausted):
		toJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "sequence_exhausted"})
	case errors.Is(err, errs.ErrImbalance):
		toJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "imbalance"})
	case errors.Is(err, errs.ErrUnprocessable):
		toJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "unprocessable"})
	case errors.Is(err, errs.ErrAlreadyReconciled):
		toJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "already_reconciled"})
	case errors.Is(err, errs.ErrStateConflict), errors.Is(err, errs.ErrConcurrencyConflict):
		toJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "conflict"})
	default:
		toJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}
