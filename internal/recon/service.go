package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/finledger/finledger/internal/accounting/shared"
	internalShared "github.com/finledger/finledger/internal/shared"
)

var (
	ErrAccountNumberTaken   = errors.New("recon: bank account number already registered")
	ErrBankAccountNotActive = errors.New("recon: bank account is not active")
	ErrAlreadyMatched       = errors.New("recon: transaction already matched")
	ErrNotMatched           = errors.New("recon: transaction is not matched")
)

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// matchWindowDays bounds the entry-date search when suggesting matches for a
// bank transaction. Bank settlement usually lags the ledger by a day or two.
const matchWindowDays = 3

// Service owns bank statement import and reconciliation. Imports are
// content-addressed: a re-sent file lands as zero new rows, not a double
// count.
type Service struct {
	repo    Repository
	audit   AuditPort
	logger  *slog.Logger
	printer *message.Printer
	now     func() time.Time
}

func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		audit:   audit,
		logger:  logger,
		printer: message.NewPrinter(language.English),
		now:     time.Now,
	}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) GetBankAccount(ctx context.Context, id int64) (BankAccount, error) {
	return s.repo.GetBankAccount(ctx, id)
}

func (s *Service) ListBankAccounts(ctx context.Context) ([]BankAccount, error) {
	return s.repo.ListBankAccounts(ctx)
}

// CreateBankAccount registers a bank account bound to a ledger cash account.
func (s *Service) CreateBankAccount(ctx context.Context, account BankAccount) (BankAccount, error) {
	account.AccountNumber = strings.TrimSpace(account.AccountNumber)
	account.BankName = strings.TrimSpace(account.BankName)
	if account.AccountID == 0 {
		return BankAccount{}, errors.New("recon: ledger account id required")
	}
	if account.AccountNumber == "" {
		return BankAccount{}, errors.New("recon: account number required")
	}
	if account.BankName == "" {
		return BankAccount{}, errors.New("recon: bank name required")
	}
	switch account.Status {
	case "":
		account.Status = BankAccountActive
	case BankAccountActive, BankAccountInactive, BankAccountClosed:
	default:
		return BankAccount{}, fmt.Errorf("recon: unknown bank account status %q", account.Status)
	}
	created, err := s.repo.CreateBankAccount(ctx, account)
	if err != nil {
		return BankAccount{}, err
	}
	s.recordAudit(ctx, 0, "bank_account.create", created.ID, map[string]any{"account_number": created.AccountNumber})
	return created, nil
}

func (s *Service) GetStatement(ctx context.Context, id int64) (BankStatement, error) {
	return s.repo.GetStatement(ctx, id)
}

func (s *Service) ListStatements(ctx context.Context, bankAccountID int64) ([]BankStatement, error) {
	return s.repo.ListStatements(ctx, bankAccountID)
}

func (s *Service) ListTransactions(ctx context.Context, statementID int64) ([]BankTransaction, error) {
	return s.repo.ListTransactions(ctx, statementID)
}

// ImportStatement stores a statement and its rows, skipping rows whose
// fingerprint is already known. The dedup check runs as one set-membership
// query over the whole batch; the unique index on fingerprint backstops
// concurrent imports of the same file.
func (s *Service) ImportStatement(ctx context.Context, in ImportInput, actorID int64) (ImportResult, error) {
	if err := in.Validate(); err != nil {
		return ImportResult{}, err
	}
	account, err := s.repo.GetBankAccount(ctx, in.BankAccountID)
	if err != nil {
		return ImportResult{}, err
	}
	if account.Status != BankAccountActive {
		return ImportResult{}, ErrBankAccountNotActive
	}

	candidates := make([]BankTransaction, 0, len(in.Transactions))
	fingerprints := make([]string, 0, len(in.Transactions))
	seen := make(map[string]struct{}, len(in.Transactions))
	duplicates := 0
	for _, row := range in.Transactions {
		fp := row.Fingerprint()
		if _, dup := seen[fp]; dup {
			duplicates++
			continue
		}
		seen[fp] = struct{}{}
		fingerprints = append(fingerprints, fp)
		candidates = append(candidates, BankTransaction{
			TransactionDate: row.TransactionDate,
			Amount:          row.Amount,
			Description:     strings.TrimSpace(row.Description),
			Reference:       strings.TrimSpace(row.Reference),
			Fingerprint:     fp,
			MatchStatus:     MatchStatusUnmatched,
		})
	}

	existing, err := s.repo.ExistingFingerprints(ctx, fingerprints)
	if err != nil {
		return ImportResult{}, err
	}
	fresh := candidates[:0]
	for _, tx := range candidates {
		if _, dup := existing[tx.Fingerprint]; dup {
			duplicates++
			continue
		}
		fresh = append(fresh, tx)
	}

	var statement BankStatement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertStatement(ctx, in)
		if err != nil {
			return err
		}
		if err := tx.InsertTransactions(ctx, inserted.ID, fresh); err != nil {
			return err
		}
		statement, err = tx.RecomputeStatementTotals(ctx, inserted.ID)
		return err
	})
	if err != nil {
		return ImportResult{}, err
	}

	if s.logger != nil {
		s.logger.Info("bank statement imported",
			slog.Int64("statement_id", statement.ID),
			slog.Int64("bank_account_id", in.BankAccountID),
			slog.Int("imported", len(fresh)),
			slog.Int("duplicates_skipped", duplicates))
	}
	s.recordAudit(ctx, actorID, "bank_statement.import", statement.ID, map[string]any{
		"imported":   len(fresh),
		"duplicates": duplicates,
	})
	return ImportResult{
		StatementID:          statement.ID,
		TransactionsImported: len(fresh),
		DuplicatesSkipped:    duplicates,
	}, nil
}

// ValidateTotals checks opening + credits - debits against the declared
// closing balance. A mismatch is reported, never enforced; statements with
// bank-side oddities still need to be visible to the person reconciling them.
// A balanced statement stamps the bank account's last reconciled date and
// balance.
func (s *Service) ValidateTotals(ctx context.Context, statementID int64) (TotalsReport, error) {
	statement, err := s.repo.GetStatement(ctx, statementID)
	if err != nil {
		return TotalsReport{}, err
	}
	report := s.buildTotalsReport(statement)
	if report.IsValid {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.TouchReconciled(ctx, statement.BankAccountID, statement.PeriodEnd, statement.ClosingBalance)
		})
		if err != nil {
			return TotalsReport{}, err
		}
		s.recordAudit(ctx, 0, "bank_account.reconciled", statement.BankAccountID, map[string]any{"statement_id": statement.ID})
	}
	return report, nil
}

func (s *Service) buildTotalsReport(statement BankStatement) TotalsReport {
	calculated := statement.OpeningBalance + statement.TotalCredits - statement.TotalDebits
	difference := statement.ClosingBalance - calculated
	report := TotalsReport{
		IsValid:           math.Abs(difference) < shared.Epsilon,
		OpeningBalance:    statement.OpeningBalance,
		TotalDebits:       statement.TotalDebits,
		TotalCredits:      statement.TotalCredits,
		ClosingBalance:    statement.ClosingBalance,
		CalculatedClosing: calculated,
		Difference:        difference,
	}
	if report.IsValid {
		report.Summary = s.printer.Sprintf("Statement balances: opening %.2f + credits %.2f - debits %.2f = closing %.2f",
			statement.OpeningBalance, statement.TotalCredits, statement.TotalDebits, statement.ClosingBalance)
	} else {
		report.Summary = s.printer.Sprintf("Statement is off by %.2f: declared closing %.2f, calculated %.2f",
			difference, statement.ClosingBalance, calculated)
	}
	return report
}

// DeleteStatement removes a statement and its rows. Matched rows carry
// reconciliation state that deletion would silently destroy, so the presence
// of any match blocks the whole delete.
func (s *Service) DeleteStatement(ctx context.Context, statementID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		matched, err := tx.CountMatched(ctx, statementID)
		if err != nil {
			return err
		}
		if matched > 0 {
			return shared.ErrHasMatchedTransactions
		}
		return tx.DeleteStatement(ctx, statementID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "bank_statement.delete", statementID, nil)
	return nil
}

// Match ties a bank transaction to a posted journal line.
func (s *Service) Match(ctx context.Context, transactionID, journalLineID, actorID int64) (BankTransaction, error) {
	if journalLineID == 0 {
		return BankTransaction{}, errors.New("recon: journal line id required")
	}
	tx, err := s.transition(ctx, transactionID, func(current BankTransaction) (MatchStatus, *int64, error) {
		if current.MatchStatus == MatchStatusMatched {
			return "", nil, ErrAlreadyMatched
		}
		return MatchStatusMatched, &journalLineID, nil
	})
	if err != nil {
		return BankTransaction{}, err
	}
	s.recordAudit(ctx, actorID, "bank_transaction.match", transactionID, map[string]any{"journal_line_id": journalLineID})
	return tx, nil
}

// Unmatch returns a matched transaction to UNMATCHED.
func (s *Service) Unmatch(ctx context.Context, transactionID, actorID int64) (BankTransaction, error) {
	tx, err := s.transition(ctx, transactionID, func(current BankTransaction) (MatchStatus, *int64, error) {
		if current.MatchStatus != MatchStatusMatched {
			return "", nil, ErrNotMatched
		}
		return MatchStatusUnmatched, nil, nil
	})
	if err != nil {
		return BankTransaction{}, err
	}
	s.recordAudit(ctx, actorID, "bank_transaction.unmatch", transactionID, nil)
	return tx, nil
}

// Ignore flags a transaction as not expected to match any ledger line, such
// as bank fees booked elsewhere.
func (s *Service) Ignore(ctx context.Context, transactionID, actorID int64) (BankTransaction, error) {
	tx, err := s.transition(ctx, transactionID, func(current BankTransaction) (MatchStatus, *int64, error) {
		if current.MatchStatus == MatchStatusMatched {
			return "", nil, ErrAlreadyMatched
		}
		return MatchStatusIgnored, nil, nil
	})
	if err != nil {
		return BankTransaction{}, err
	}
	s.recordAudit(ctx, actorID, "bank_transaction.ignore", transactionID, nil)
	return tx, nil
}

func (s *Service) transition(ctx context.Context, transactionID int64, decide func(BankTransaction) (MatchStatus, *int64, error)) (BankTransaction, error) {
	var updated BankTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		status, lineID, err := decide(current)
		if err != nil {
			return err
		}
		if err := tx.UpdateMatchStatus(ctx, current.ID, status, lineID); err != nil {
			return err
		}
		current.MatchStatus = status
		current.MatchedJournalLineID = lineID
		updated = current
		return nil
	})
	if err != nil {
		return BankTransaction{}, err
	}
	return updated, nil
}

// SuggestMatches proposes posted journal lines for an unmatched transaction.
// A credit on the bank statement is money into the bank, which the ledger
// records as a debit on the cash account, and vice versa.
func (s *Service) SuggestMatches(ctx context.Context, transactionID int64) ([]MatchCandidate, error) {
	tx, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	statement, err := s.repo.GetStatement(ctx, tx.BankStatementID)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.GetBankAccount(ctx, statement.BankAccountID)
	if err != nil {
		return nil, err
	}

	direction := "DEBIT"
	amount := tx.Amount
	if tx.Amount < 0 {
		direction = "CREDIT"
		amount = -tx.Amount
	}
	from := tx.TransactionDate.AddDate(0, 0, -matchWindowDays)
	to := tx.TransactionDate.AddDate(0, 0, matchWindowDays)
	return s.repo.FindPostedLineCandidates(ctx, account.AccountID, direction, amount, from, to)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "bank_reconciliation",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
