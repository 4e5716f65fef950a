package recon

import (
	"errors"
	"time"
)

// BankAccountStatus enumerates bank account lifecycle values.
type BankAccountStatus string

const (
	BankAccountActive   BankAccountStatus = "ACTIVE"
	BankAccountInactive BankAccountStatus = "INACTIVE"
	BankAccountClosed   BankAccountStatus = "CLOSED"
)

// BankAccount links one external bank account to a ledger account.
type BankAccount struct {
	ID                    int64
	AccountID             int64
	AccountNumber         string
	BankName              string
	Status                BankAccountStatus
	LastReconciledDate    *time.Time
	LastReconciledBalance *float64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// BankStatement aggregates one imported statement period. The summary
// counters are recomputed from stored transactions after every import, never
// incremented, so partial duplicate skips cannot drift them.
type BankStatement struct {
	ID               int64
	BankAccountID    int64
	PeriodStart      time.Time
	PeriodEnd        time.Time
	OpeningBalance   float64
	ClosingBalance   float64
	TotalDebits      float64
	TotalCredits     float64
	TransactionCount int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// MatchStatus enumerates reconciliation states of a bank transaction.
type MatchStatus string

const (
	MatchStatusUnmatched MatchStatus = "UNMATCHED"
	MatchStatusMatched   MatchStatus = "MATCHED"
	MatchStatusIgnored   MatchStatus = "IGNORED"
)

// BankTransaction is one statement row. Amount is signed: >= 0 is a credit
// to the bank account, < 0 a debit. Fingerprint deduplicates re-imports.
type BankTransaction struct {
	ID                   int64
	BankStatementID      int64
	TransactionDate      time.Time
	Amount               float64
	Description          string
	Reference            string
	Fingerprint          string
	MatchStatus          MatchStatus
	MatchedJournalLineID *int64
	CreatedAt            time.Time
}

// TransactionInput is one incoming statement row before fingerprinting.
type TransactionInput struct {
	TransactionDate time.Time `json:"transactionDate" validate:"required"`
	Amount          float64   `json:"amount"`
	Description     string    `json:"description"`
	Reference       string    `json:"reference"`
}

// ImportInput carries one statement import request.
type ImportInput struct {
	BankAccountID  int64
	PeriodStart    time.Time
	PeriodEnd      time.Time
	OpeningBalance float64
	ClosingBalance float64
	Transactions   []TransactionInput
}

// Validate checks the envelope before any storage work.
func (in ImportInput) Validate() error {
	if in.BankAccountID == 0 {
		return errors.New("recon: bank account id required")
	}
	if in.PeriodStart.IsZero() || in.PeriodEnd.IsZero() {
		return errors.New("recon: statement period required")
	}
	if !in.PeriodStart.Before(in.PeriodEnd) {
		return errors.New("recon: period start must precede period end")
	}
	for _, tx := range in.Transactions {
		if tx.TransactionDate.IsZero() {
			return errors.New("recon: transaction date required")
		}
	}
	return nil
}

// ImportResult reports what one import call did.
type ImportResult struct {
	StatementID          int64 `json:"statementId"`
	TransactionsImported int   `json:"transactionsImported"`
	DuplicatesSkipped    int   `json:"duplicatesSkipped"`
}

// TotalsReport is the reconciliation sanity check output. It never blocks an
// import; reporting surfaces the discrepancy instead.
type TotalsReport struct {
	IsValid           bool    `json:"isValid"`
	OpeningBalance    float64 `json:"openingBalance"`
	TotalDebits       float64 `json:"totalDebits"`
	TotalCredits      float64 `json:"totalCredits"`
	ClosingBalance    float64 `json:"closingBalance"`
	CalculatedClosing float64 `json:"calculatedClosing"`
	Difference        float64 `json:"difference"`
	Summary           string  `json:"summary"`
}

// MatchCandidate is one posted journal line suggested for a bank transaction.
type MatchCandidate struct {
	JournalEntryID int64     `json:"journalEntryId"`
	JournalLineID  int64     `json:"journalLineId"`
	EntryNumber    int64     `json:"entryNumber"`
	EntryDate      time.Time `json:"entryDate"`
	AccountID      int64     `json:"accountId"`
	Direction      string    `json:"direction"`
	Amount         float64   `json:"amount"`
}
