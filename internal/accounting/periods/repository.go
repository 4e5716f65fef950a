package periods

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finledger/finledger/internal/accounting/shared"
	"github.com/finledger/finledger/internal/platform/db"
)

type Repository interface {
	Get(ctx context.Context, key Key) (FiscalPeriod, error)
	List(ctx context.Context, fiscalYear int) ([]FiscalPeriod, error)
	// EnsureOpen inserts an OPEN period row when none exists yet and returns
	// the current row either way.
	EnsureOpen(ctx context.Context, key Key) (FiscalPeriod, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes period mutations inside a transaction. Status is read
// with FOR UPDATE so a concurrent posting cannot race a close.
type TxRepository interface {
	GetForUpdate(ctx context.Context, key Key) (FiscalPeriod, error)
	UpdateStatus(ctx context.Context, in StatusUpdate) (FiscalPeriod, error)
}

// StatusUpdate carries one period status transition.
type StatusUpdate struct {
	PeriodID int64
	Status   PeriodStatus
	ActorID  int64
	Reason   *string
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, fiscal_year, fiscal_month, status, closed_by, closed_at, reopened_by, reopened_at, reopen_reason, locked_by, locked_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (FiscalPeriod, error) {
	var p FiscalPeriod
	err := row.Scan(&p.ID, &p.FiscalYear, &p.FiscalMonth, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.ReopenedBy, &p.ReopenedAt, &p.ReopenReason, &p.LockedBy, &p.LockedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalPeriod{}, shared.ErrNotFound
		}
		return FiscalPeriod{}, err
	}
	return p, nil
}

func (r *repository) Get(ctx context.Context, key Key) (FiscalPeriod, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE fiscal_year=$1 AND fiscal_month=$2`, key.Year, key.Month)
	return scanPeriod(row)
}

func (r *repository) List(ctx context.Context, fiscalYear int) ([]FiscalPeriod, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE fiscal_year=$1 ORDER BY fiscal_month`, fiscalYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FiscalPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) EnsureOpen(ctx context.Context, key Key) (FiscalPeriod, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO fiscal_periods (fiscal_year, fiscal_month, status)
VALUES ($1,$2,'OPEN')
ON CONFLICT (fiscal_year, fiscal_month) DO UPDATE SET updated_at=NOW()
RETURNING `+periodColumns, key.Year, key.Month)
	return scanPeriod(row)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, key Key) (FiscalPeriod, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE fiscal_year=$1 AND fiscal_month=$2 FOR UPDATE`, key.Year, key.Month)
	return scanPeriod(row)
}

func (r *txRepository) UpdateStatus(ctx context.Context, in StatusUpdate) (FiscalPeriod, error) {
	var query string
	switch in.Status {
	case PeriodStatusClosed:
		query = `UPDATE fiscal_periods SET status='CLOSED', closed_by=$2, closed_at=NOW(), updated_at=NOW() WHERE id=$1 RETURNING ` + periodColumns
	case PeriodStatusOpen:
		query = `UPDATE fiscal_periods SET status='OPEN', reopened_by=$2, reopened_at=NOW(), reopen_reason=$3, updated_at=NOW() WHERE id=$1 RETURNING ` + periodColumns
	case PeriodStatusLocked:
		query = `UPDATE fiscal_periods SET status='LOCKED', locked_by=$2, locked_at=NOW(), updated_at=NOW() WHERE id=$1 RETURNING ` + periodColumns
	default:
		return FiscalPeriod{}, shared.ErrInvalidTransition
	}
	args := []any{in.PeriodID, in.ActorID}
	if in.Status == PeriodStatusOpen {
		args = append(args, in.Reason)
	}
	return scanPeriod(r.tx.QueryRow(ctx, query, args...))
}
