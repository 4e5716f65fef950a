package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/finledger/finledger/internal/accounting/shared"
)

// Machine-readable error kinds surfaced at the API boundary.
const (
	KindValidation           = "VALIDATION_ERROR"
	KindNotFound             = "NOT_FOUND"
	KindUnbalanced           = "UNBALANCED_ENTRY"
	KindUnknownAccount       = "UNKNOWN_ACCOUNT"
	KindInvalidTransition    = "INVALID_TRANSITION"
	KindPeriodClosed         = "PERIOD_CLOSED"
	KindPeriodLocked         = "PERIOD_LOCKED"
	KindAlreadyPosted        = "ALREADY_POSTED"
	KindAlreadyVoided        = "ALREADY_VOIDED"
	KindMissingAccountConfig = "MISSING_ACCOUNT_CONFIGURATION"
	KindDuplicateEvent       = "DUPLICATE_EVENT"
	KindDuplicateTransaction = "DUPLICATE_TRANSACTION"
	KindHasMatched           = "HAS_MATCHED_TRANSACTIONS"
	KindInternal             = "INTERNAL"
)

// RespondError maps domain errors onto the envelope. Business-rule
// violations are 400s, missing resources 404s, idempotency conflicts 409s.
// Anything unrecognised is a 500 with the detail withheld.
func RespondError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Fail(w, http.StatusNotFound, KindNotFound, err.Error())
	case errors.Is(err, shared.ErrUnbalanced):
		Fail(w, http.StatusBadRequest, KindUnbalanced, err.Error())
	case errors.Is(err, shared.ErrTooFewLines):
		Fail(w, http.StatusBadRequest, KindValidation, err.Error())
	case errors.Is(err, shared.ErrUnknownAccount):
		Fail(w, http.StatusBadRequest, KindUnknownAccount, err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Fail(w, http.StatusBadRequest, KindInvalidTransition, err.Error())
	case errors.Is(err, shared.ErrPeriodClosed):
		Fail(w, http.StatusBadRequest, KindPeriodClosed, err.Error())
	case errors.Is(err, shared.ErrPeriodLocked):
		Fail(w, http.StatusBadRequest, KindPeriodLocked, err.Error())
	case errors.Is(err, shared.ErrAlreadyPosted):
		Fail(w, http.StatusBadRequest, KindAlreadyPosted, err.Error())
	case errors.Is(err, shared.ErrAlreadyVoided):
		Fail(w, http.StatusBadRequest, KindAlreadyVoided, err.Error())
	case errors.Is(err, shared.ErrAccountNotConfigured):
		Fail(w, http.StatusBadRequest, KindMissingAccountConfig, err.Error())
	case errors.Is(err, shared.ErrDuplicateEvent):
		Fail(w, http.StatusConflict, KindDuplicateEvent, err.Error())
	case errors.Is(err, shared.ErrDuplicateTransaction):
		Fail(w, http.StatusConflict, KindDuplicateTransaction, err.Error())
	case errors.Is(err, shared.ErrHasMatchedTransactions):
		Fail(w, http.StatusBadRequest, KindHasMatched, err.Error())
	case errors.As(err, &validationErrs):
		Fail(w, http.StatusBadRequest, KindValidation, validationErrs.Error())
	default:
		Fail(w, http.StatusInternalServerError, KindInternal, "internal error")
	}
}

// BadRequest is a shorthand for caller-side validation failures.
func BadRequest(w http.ResponseWriter, message string) {
	Fail(w, http.StatusBadRequest, KindValidation, message)
}
