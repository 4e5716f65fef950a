package recon

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finledger/finledger/internal/accounting/shared"
	"github.com/finledger/finledger/internal/platform/db"
)

type Repository interface {
	GetBankAccount(ctx context.Context, id int64) (BankAccount, error)
	GetBankAccountByNumber(ctx context.Context, accountNumber string) (BankAccount, error)
	ListBankAccounts(ctx context.Context) ([]BankAccount, error)
	CreateBankAccount(ctx context.Context, account BankAccount) (BankAccount, error)

	GetStatement(ctx context.Context, id int64) (BankStatement, error)
	ListStatements(ctx context.Context, bankAccountID int64) ([]BankStatement, error)
	ListTransactions(ctx context.Context, statementID int64) ([]BankTransaction, error)
	GetTransaction(ctx context.Context, id int64) (BankTransaction, error)

	// ExistingFingerprints reports which of the given fingerprints are already
	// stored. One set-membership query regardless of batch size.
	ExistingFingerprints(ctx context.Context, fingerprints []string) (map[string]struct{}, error)

	// FindPostedLineCandidates returns posted journal lines on the ledger
	// account with the given direction and amount, dated within the window.
	FindPostedLineCandidates(ctx context.Context, accountID int64, direction string, amount float64, from, to time.Time) ([]MatchCandidate, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

type TxRepository interface {
	InsertStatement(ctx context.Context, in ImportInput) (BankStatement, error)
	// InsertTransactions writes the batch in one round trip. A fingerprint
	// collision from a concurrent import surfaces as ErrDuplicateTransaction
	// and rolls the whole statement back; the retry then skips the rows.
	InsertTransactions(ctx context.Context, statementID int64, txs []BankTransaction) error
	// RecomputeStatementTotals rebuilds the summary counters from stored rows.
	RecomputeStatementTotals(ctx context.Context, statementID int64) (BankStatement, error)
	CountMatched(ctx context.Context, statementID int64) (int, error)
	DeleteStatement(ctx context.Context, statementID int64) error
	GetTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error)
	UpdateMatchStatus(ctx context.Context, id int64, status MatchStatus, journalLineID *int64) error
	TouchReconciled(ctx context.Context, bankAccountID int64, date time.Time, balance float64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const bankAccountColumns = `id, account_id, account_number, bank_name, status, last_reconciled_date, last_reconciled_balance, created_at, updated_at`

func scanBankAccount(row pgx.Row) (BankAccount, error) {
	var a BankAccount
	err := row.Scan(&a.ID, &a.AccountID, &a.AccountNumber, &a.BankName, &a.Status, &a.LastReconciledDate, &a.LastReconciledBalance, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BankAccount{}, shared.ErrNotFound
	}
	return a, err
}

func (r *repository) GetBankAccount(ctx context.Context, id int64) (BankAccount, error) {
	return scanBankAccount(r.db.QueryRow(ctx, `SELECT `+bankAccountColumns+` FROM bank_accounts WHERE id=$1`, id))
}

func (r *repository) GetBankAccountByNumber(ctx context.Context, accountNumber string) (BankAccount, error) {
	return scanBankAccount(r.db.QueryRow(ctx, `SELECT `+bankAccountColumns+` FROM bank_accounts WHERE account_number=$1`, accountNumber))
}

func (r *repository) ListBankAccounts(ctx context.Context) ([]BankAccount, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bankAccountColumns+` FROM bank_accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankAccount
	for rows.Next() {
		a, err := scanBankAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) CreateBankAccount(ctx context.Context, account BankAccount) (BankAccount, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO bank_accounts (account_id, account_number, bank_name, status)
VALUES ($1,$2,$3,$4)
RETURNING `+bankAccountColumns, account.AccountID, account.AccountNumber, account.BankName, account.Status).
		Scan(&account.ID, &account.AccountID, &account.AccountNumber, &account.BankName, &account.Status, &account.LastReconciledDate, &account.LastReconciledBalance, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return BankAccount{}, ErrAccountNumberTaken
		}
		return BankAccount{}, err
	}
	return account, nil
}

const statementColumns = `id, bank_account_id, period_start, period_end, opening_balance, closing_balance, total_debits, total_credits, transaction_count, created_at, updated_at`

func scanStatement(row pgx.Row) (BankStatement, error) {
	var s BankStatement
	err := row.Scan(&s.ID, &s.BankAccountID, &s.PeriodStart, &s.PeriodEnd, &s.OpeningBalance, &s.ClosingBalance, &s.TotalDebits, &s.TotalCredits, &s.TransactionCount, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BankStatement{}, shared.ErrNotFound
	}
	return s, err
}

func (r *repository) GetStatement(ctx context.Context, id int64) (BankStatement, error) {
	return scanStatement(r.db.QueryRow(ctx, `SELECT `+statementColumns+` FROM bank_statements WHERE id=$1`, id))
}

func (r *repository) ListStatements(ctx context.Context, bankAccountID int64) ([]BankStatement, error) {
	rows, err := r.db.Query(ctx, `SELECT `+statementColumns+` FROM bank_statements WHERE bank_account_id=$1 ORDER BY period_start DESC`, bankAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankStatement
	for rows.Next() {
		s, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const transactionColumns = `id, bank_statement_id, transaction_date, amount, description, reference, fingerprint, match_status, matched_journal_line_id, created_at`

func scanTransaction(row pgx.Row) (BankTransaction, error) {
	var t BankTransaction
	err := row.Scan(&t.ID, &t.BankStatementID, &t.TransactionDate, &t.Amount, &t.Description, &t.Reference, &t.Fingerprint, &t.MatchStatus, &t.MatchedJournalLineID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BankTransaction{}, shared.ErrNotFound
	}
	return t, err
}

func (r *repository) ListTransactions(ctx context.Context, statementID int64) ([]BankTransaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+transactionColumns+` FROM bank_transactions WHERE bank_statement_id=$1 ORDER BY transaction_date, id`, statementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) GetTransaction(ctx context.Context, id int64) (BankTransaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM bank_transactions WHERE id=$1`, id))
}

func (r *repository) ExistingFingerprints(ctx context.Context, fingerprints []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(fingerprints))
	if len(fingerprints) == 0 {
		return existing, nil
	}
	rows, err := r.db.Query(ctx, `SELECT fingerprint FROM bank_transactions WHERE fingerprint = ANY($1)`, fingerprints)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		existing[fp] = struct{}{}
	}
	return existing, rows.Err()
}

func (r *repository) FindPostedLineCandidates(ctx context.Context, accountID int64, direction string, amount float64, from, to time.Time) ([]MatchCandidate, error) {
	rows, err := r.db.Query(ctx, `SELECT e.id, l.id, e.entry_number, e.entry_date, l.account_id, l.direction, l.amount
FROM journal_lines l
JOIN journal_entries e ON e.id = l.journal_entry_id
WHERE e.status = 'POSTED'
  AND l.account_id = $1
  AND l.direction = $2
  AND ABS(l.amount - $3) < $4
  AND e.entry_date BETWEEN $5 AND $6
ORDER BY e.entry_date, e.id`, accountID, direction, amount, shared.Epsilon, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MatchCandidate
	for rows.Next() {
		var c MatchCandidate
		if err := rows.Scan(&c.JournalEntryID, &c.JournalLineID, &c.EntryNumber, &c.EntryDate, &c.AccountID, &c.Direction, &c.Amount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertStatement(ctx context.Context, in ImportInput) (BankStatement, error) {
	return scanStatement(r.tx.QueryRow(ctx, `INSERT INTO bank_statements (bank_account_id, period_start, period_end, opening_balance, closing_balance)
VALUES ($1,$2,$3,$4,$5)
RETURNING `+statementColumns, in.BankAccountID, in.PeriodStart, in.PeriodEnd, in.OpeningBalance, in.ClosingBalance))
}

func (r *txRepository) InsertTransactions(ctx context.Context, statementID int64, txs []BankTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range txs {
		batch.Queue(`INSERT INTO bank_transactions (bank_statement_id, transaction_date, amount, description, reference, fingerprint, match_status)
VALUES ($1,$2,$3,$4,$5,$6,'UNMATCHED')`, statementID, t.TransactionDate, t.Amount, t.Description, t.Reference, t.Fingerprint)
	}
	results := r.tx.SendBatch(ctx, batch)
	defer results.Close()
	for range txs {
		if _, err := results.Exec(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return shared.ErrDuplicateTransaction
			}
			return err
		}
	}
	return nil
}

func (r *txRepository) RecomputeStatementTotals(ctx context.Context, statementID int64) (BankStatement, error) {
	return scanStatement(r.tx.QueryRow(ctx, `UPDATE bank_statements s SET
	total_credits = agg.credits,
	total_debits = agg.debits,
	transaction_count = agg.cnt,
	updated_at = NOW()
FROM (
	SELECT COALESCE(SUM(CASE WHEN amount >= 0 THEN amount ELSE 0 END),0) AS credits,
	       COALESCE(SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END),0) AS debits,
	       COUNT(*) AS cnt
	FROM bank_transactions WHERE bank_statement_id=$1
) agg
WHERE s.id=$1
RETURNING `+qualifiedStatementColumns("s"), statementID))
}

func qualifiedStatementColumns(alias string) string {
	return alias + `.id, ` + alias + `.bank_account_id, ` + alias + `.period_start, ` + alias + `.period_end, ` +
		alias + `.opening_balance, ` + alias + `.closing_balance, ` + alias + `.total_debits, ` + alias + `.total_credits, ` +
		alias + `.transaction_count, ` + alias + `.created_at, ` + alias + `.updated_at`
}

func (r *txRepository) CountMatched(ctx context.Context, statementID int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM bank_transactions WHERE bank_statement_id=$1 AND match_status='MATCHED'`, statementID).Scan(&count)
	return count, err
}

func (r *txRepository) DeleteStatement(ctx context.Context, statementID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM bank_transactions WHERE bank_statement_id=$1`, statementID); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM bank_statements WHERE id=$1`, statementID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error) {
	return scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM bank_transactions WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateMatchStatus(ctx context.Context, id int64, status MatchStatus, journalLineID *int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE bank_transactions SET match_status=$2, matched_journal_line_id=$3 WHERE id=$1`, id, status, journalLineID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) TouchReconciled(ctx context.Context, bankAccountID int64, date time.Time, balance float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE bank_accounts SET last_reconciled_date=$2, last_reconciled_balance=$3, updated_at=NOW() WHERE id=$1`, bankAccountID, date, balance)
	return err
}
