package errs

import "errors"

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound  = errors.New("not_found")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid")
	// ErrUnprocessable is used for semantic validation failures (HTTP 422)
	ErrUnprocessable = errors.New("unprocessable")

	// ErrUnbalancedEntry indicates base-currency debits != credits.
	ErrUnbalancedEntry = errors.New("unbalanced_entry")
	// ErrInvalidLine indicates a line violates the debit/credit exclusivity rule
	// or references an unknown/inactive account.
	ErrInvalidLine = errors.New("invalid_line")
	// ErrClosedPeriod indicates the entry date is not inside an open fiscal period.
	ErrClosedPeriod = errors.New("closed_period")
	// ErrSequenceExhausted indicates a numbering sequence hit max_value without cycling.
	ErrSequenceExhausted = errors.New("sequence_exhausted")
	// ErrMissingRate indicates no exchange rate could be resolved for the date.
	ErrMissingRate = errors.New("missing_rate")
	// ErrStateConflict indicates an operation not valid for the current state
	// (reverse a reversed entry, void a voided document, refinalize, ...).
	ErrStateConflict = errors.New("state_conflict")
	// ErrAlreadyReconciled indicates a candidate bank transaction is locked by
	// another reconciliation.
	ErrAlreadyReconciled = errors.New("already_reconciled")
	// ErrImbalance indicates a reconciliation difference != 0 on finalize.
	ErrImbalance = errors.New("imbalance")
	// ErrConcurrencyConflict indicates a lock timeout or serialization failure;
	// callers may retry.
	ErrConcurrencyConflict = errors.New("concurrency_conflict")
	// ErrInternal marks invariant violations that should be unreachable.
	ErrInternal = errors.New("internal")
)
