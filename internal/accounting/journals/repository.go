package journals

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finledger/finledger/internal/accounting/periods"
	"github.com/finledger/finledger/internal/accounting/shared"
	"github.com/finledger/finledger/internal/platform/db"
)

// Repository encapsulates DB operations for journals. It also reaches into
// fiscal periods for transaction-safe gate checks.
type Repository interface {
	Get(ctx context.Context, id int64) (JournalEntry, error)
	List(ctx context.Context, filter ListFilter) ([]JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, in CreateInput, status EntryStatus, postedBy *int64) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error)
	GetEntryForUpdate(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error)
	MarkPosted(ctx context.Context, entryID, postedBy int64) error
	MarkVoided(ctx context.Context, entryID, voidedBy int64, reason string) error
	DeleteDraft(ctx context.Context, entryID int64) error
	InsertNotification(ctx context.Context, n PostedNotification) error

	// Period operations needed within journal transactions. The period row is
	// created OPEN on first use and locked so a concurrent close must wait.
	EnsurePeriodForUpdate(ctx context.Context, key periods.Key) (periods.FiscalPeriod, error)
}

// ListFilter narrows the journal listing.
type ListFilter struct {
	Status        EntryStatus
	SourceService string
	Limit         int
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, entry_number, entry_date, fiscal_year, fiscal_month, status, entry_type, source_service, source_reference_id, description, created_by, posted_by, posted_at, voided_by, voided_at, void_reason, reversal_of, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.EntryNumber, &e.EntryDate, &e.FiscalYear, &e.FiscalMonth, &e.Status, &e.EntryType, &e.SourceService, &e.SourceReferenceID, &e.Description, &e.CreatedBy, &e.PostedBy, &e.PostedAt, &e.VoidedBy, &e.VoidedAt, &e.VoidReason, &e.ReversalOf, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrNotFound
		}
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *repository) Get(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id))
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := queryLines(ctx, r.db, id)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status=$1`
	}
	if filter.SourceService != "" {
		args = append(args, filter.SourceService)
		query += ` AND source_service=$` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY entry_number DESC`
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q queryer, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, journal_entry_id, account_id, direction, amount, customer_id, sales_person_id, warehouse_id, sales_channel, created_at
FROM journal_lines WHERE journal_entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalEntryID, &line.AccountID, &line.Direction, &line.Amount, &line.CustomerID, &line.SalesPersonID, &line.WarehouseID, &line.SalesChannel, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an existing transaction so other modules can share a
// single commit boundary with journal writes.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) InsertEntry(ctx context.Context, in CreateInput, status EntryStatus, postedBy *int64) (JournalEntry, error) {
	key := periods.KeyForDate(in.EntryDate)
	var postedAt *time.Time
	if status == EntryStatusPosted {
		now := time.Now()
		postedAt = &now
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(entry_date, fiscal_year, fiscal_month, status, entry_type, source_service, source_reference_id, description, created_by, posted_by, posted_at, reversal_of)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING `+entryColumns,
		in.EntryDate, key.Year, key.Month, status, in.EntryType, in.SourceService, in.SourceReferenceID, in.Description, in.CreatedBy, postedBy, postedAt, in.ReversalOf)
	return scanEntry(row)
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		var inserted JournalLine
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines
(journal_entry_id, account_id, direction, amount, customer_id, sales_person_id, warehouse_id, sales_channel)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id, journal_entry_id, account_id, direction, amount, customer_id, sales_person_id, warehouse_id, sales_channel, created_at`,
			entryID, line.AccountID, line.Direction, line.Amount, line.CustomerID, line.SalesPersonID, line.WarehouseID, line.SalesChannel).
			Scan(&inserted.ID, &inserted.JournalEntryID, &inserted.AccountID, &inserted.Direction, &inserted.Amount, &inserted.CustomerID, &inserted.SalesPersonID, &inserted.WarehouseID, &inserted.SalesChannel, &inserted.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, entryID))
	if err != nil {
		return JournalEntry{}, nil, err
	}
	lines, err := queryLines(ctx, r.tx, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	return entry, lines, nil
}

func (r *txRepository) MarkPosted(ctx context.Context, entryID, postedBy int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='POSTED', posted_by=$2, posted_at=NOW(), updated_at=NOW() WHERE id=$1`, entryID, postedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) MarkVoided(ctx context.Context, entryID, voidedBy int64, reason string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='VOIDED', voided_by=$2, voided_at=NOW(), void_reason=$3, updated_at=NOW() WHERE id=$1`, entryID, voidedBy, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) DeleteDraft(ctx context.Context, entryID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE journal_entry_id=$1`, entryID); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1 AND status='DRAFT'`, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertNotification(ctx context.Context, n PostedNotification) error {
	payload, err := json.Marshal(n.Lines)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO journal_notifications
(journal_entry_id, entry_number, entry_date, description, posted_by, posted_at, lines)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		n.JournalEntryID, n.EntryNumber, n.EntryDate, n.Description, n.PostedBy, n.PostedAt, payload)
	return err
}

// EnsurePeriodForUpdate upserts the period row then takes a row lock, so the
// open-status check and the posting commit share one transaction. Duplicated
// from the periods repo because it must run on this tx.
func (r *txRepository) EnsurePeriodForUpdate(ctx context.Context, key periods.Key) (periods.FiscalPeriod, error) {
	_, err := r.tx.Exec(ctx, `INSERT INTO fiscal_periods (fiscal_year, fiscal_month, status)
VALUES ($1,$2,'OPEN') ON CONFLICT (fiscal_year, fiscal_month) DO NOTHING`, key.Year, key.Month)
	if err != nil {
		return periods.FiscalPeriod{}, err
	}
	var p periods.FiscalPeriod
	err = r.tx.QueryRow(ctx, `SELECT id, fiscal_year, fiscal_month, status, closed_by, closed_at, reopened_by, reopened_at, reopen_reason, locked_by, locked_at, created_at, updated_at
FROM fiscal_periods WHERE fiscal_year=$1 AND fiscal_month=$2 FOR UPDATE`, key.Year, key.Month).
		Scan(&p.ID, &p.FiscalYear, &p.FiscalMonth, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.ReopenedBy, &p.ReopenedAt, &p.ReopenReason, &p.LockedBy, &p.LockedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.FiscalPeriod{}, shared.ErrNotFound
		}
		return periods.FiscalPeriod{}, err
	}
	return p, nil
}
