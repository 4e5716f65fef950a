package shared

import "errors"

var (
	// ErrUnbalanced indicates debit and credit totals differ beyond tolerance.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrUnknownAccount indicates a line references a missing or non-detail account.
	ErrUnknownAccount = errors.New("accounting: unknown or non-postable account")
	// ErrInvalidTransition indicates an illegal status change.
	ErrInvalidTransition = errors.New("accounting: invalid status transition")
	// ErrPeriodClosed indicates the fiscal period does not accept postings.
	ErrPeriodClosed = errors.New("accounting: fiscal period is not open")
	// ErrPeriodLocked indicates the fiscal period is permanently locked.
	ErrPeriodLocked = errors.New("accounting: fiscal period locked")
	// ErrAlreadyPosted indicates a repeated post call.
	ErrAlreadyPosted = errors.New("accounting: journal entry already posted")
	// ErrAlreadyVoided indicates a repeated void call.
	ErrAlreadyVoided = errors.New("accounting: journal entry already voided")
	// ErrAccountNotConfigured indicates an event mapping resolves to no account.
	ErrAccountNotConfigured = errors.New("accounting: account mapping not configured")
	// ErrDuplicateEvent indicates the event was already ingested successfully.
	ErrDuplicateEvent = errors.New("accounting: event already processed")
	// ErrDuplicateTransaction indicates a bank transaction fingerprint collision.
	ErrDuplicateTransaction = errors.New("accounting: bank transaction already imported")
	// ErrHasMatchedTransactions blocks deleting statements with matched rows.
	ErrHasMatchedTransactions = errors.New("accounting: statement has matched transactions")
	// ErrNotFound indicates a missing resource.
	ErrNotFound = errors.New("accounting: not found")
)

// Epsilon is the tolerance applied to balance and reconciliation equality
// checks on float64 currency amounts.
const Epsilon = 0.01
