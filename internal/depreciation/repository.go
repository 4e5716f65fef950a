package depreciation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finledger/finledger/internal/accounting/journals"
	"github.com/finledger/finledger/internal/accounting/shared"
	"github.com/finledger/finledger/internal/platform/db"
)

type Repository interface {
	ListActiveAssets(ctx context.Context) ([]FixedAsset, error)
	GetAsset(ctx context.Context, id int64) (FixedAsset, error)
	CreateAsset(ctx context.Context, asset FixedAsset) (FixedAsset, error)

	GetRun(ctx context.Context, id int64) (DepreciationRun, error)
	ListRuns(ctx context.Context, limit int) ([]DepreciationRun, error)
	// HasRunForPeriod reports whether a CALCULATED or POSTED run exists for
	// the period. REVERSED runs do not count; a reversed period may be rerun.
	HasRunForPeriod(ctx context.Context, year, month int) (bool, error)
	// PostedAmountsByAsset sums schedule lines of POSTED runs per asset, the
	// accumulated depreciation recognised so far.
	PostedAmountsByAsset(ctx context.Context) (map[int64]float64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

type TxRepository interface {
	// InsertRun persists the run and its lines. The partial unique index on
	// (fiscal_year, fiscal_month) for non-reversed runs backstops concurrent
	// calculations; a loser surfaces ErrPeriodAlreadyCalculated.
	InsertRun(ctx context.Context, run DepreciationRun) (DepreciationRun, error)
	GetRunForUpdate(ctx context.Context, id int64) (DepreciationRun, error)
	MarkPosted(ctx context.Context, runID, journalEntryID, postedBy int64) error
	MarkReversed(ctx context.Context, runID, reversalEntryID, reversedBy int64, reason string) error
	Journals() journals.TxRepository
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const assetColumns = `id, asset_code, name, acquisition_date, in_service_date, cost, salvage_value, useful_life_months, method, expense_account_id, accumulated_account_id, is_active, created_at, updated_at`

func scanAsset(row pgx.Row) (FixedAsset, error) {
	var a FixedAsset
	err := row.Scan(&a.ID, &a.AssetCode, &a.Name, &a.AcquisitionDate, &a.InServiceDate, &a.Cost, &a.SalvageValue, &a.UsefulLifeMonths, &a.Method, &a.ExpenseAccountID, &a.AccumulatedAccountID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return FixedAsset{}, shared.ErrNotFound
	}
	return a, err
}

func (r *repository) ListActiveAssets(ctx context.Context) ([]FixedAsset, error) {
	rows, err := r.db.Query(ctx, `SELECT `+assetColumns+` FROM fixed_assets WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FixedAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) GetAsset(ctx context.Context, id int64) (FixedAsset, error) {
	return scanAsset(r.db.QueryRow(ctx, `SELECT `+assetColumns+` FROM fixed_assets WHERE id=$1`, id))
}

func (r *repository) CreateAsset(ctx context.Context, asset FixedAsset) (FixedAsset, error) {
	return scanAsset(r.db.QueryRow(ctx, `INSERT INTO fixed_assets (asset_code, name, acquisition_date, in_service_date, cost, salvage_value, useful_life_months, method, expense_account_id, accumulated_account_id, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING `+assetColumns,
		asset.AssetCode, asset.Name, asset.AcquisitionDate, asset.InServiceDate, asset.Cost, asset.SalvageValue, asset.UsefulLifeMonths, asset.Method, asset.ExpenseAccountID, asset.AccumulatedAccountID, asset.IsActive))
}

const runColumns = `id, fiscal_year, fiscal_month, status, total_amount, journal_entry_id, reversal_entry_id, created_by, posted_by, posted_at, reversed_by, reversed_at, reversal_reason, created_at, updated_at`

func scanRun(row pgx.Row) (DepreciationRun, error) {
	var run DepreciationRun
	err := row.Scan(&run.ID, &run.FiscalYear, &run.FiscalMonth, &run.Status, &run.TotalAmount, &run.JournalEntryID, &run.ReversalEntryID, &run.CreatedBy, &run.PostedBy, &run.PostedAt, &run.ReversedBy, &run.ReversedAt, &run.ReversalReason, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DepreciationRun{}, shared.ErrNotFound
	}
	return run, err
}

func loadRunLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, runID int64) ([]RunLine, error) {
	rows, err := q.Query(ctx, `SELECT l.id, l.run_id, l.asset_id, a.asset_code, l.amount, l.expense_account_id, l.accumulated_account_id
FROM depreciation_run_lines l
JOIN fixed_assets a ON a.id = l.asset_id
WHERE l.run_id=$1 ORDER BY l.id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunLine
	for rows.Next() {
		var line RunLine
		if err := rows.Scan(&line.ID, &line.RunID, &line.AssetID, &line.AssetCode, &line.Amount, &line.ExpenseAccountID, &line.AccumulatedAccountID); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

func (r *repository) GetRun(ctx context.Context, id int64) (DepreciationRun, error) {
	run, err := scanRun(r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM depreciation_runs WHERE id=$1`, id))
	if err != nil {
		return DepreciationRun{}, err
	}
	run.Lines, err = loadRunLines(ctx, r.db, run.ID)
	return run, err
}

func (r *repository) ListRuns(ctx context.Context, limit int) ([]DepreciationRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+runColumns+` FROM depreciation_runs ORDER BY fiscal_year DESC, fiscal_month DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DepreciationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *repository) HasRunForPeriod(ctx context.Context, year, month int) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
	SELECT 1 FROM depreciation_runs
	WHERE fiscal_year=$1 AND fiscal_month=$2 AND status IN ('CALCULATED','POSTED')
)`, year, month).Scan(&exists)
	return exists, err
}

func (r *repository) PostedAmountsByAsset(ctx context.Context) (map[int64]float64, error) {
	rows, err := r.db.Query(ctx, `SELECT l.asset_id, SUM(l.amount)
FROM depreciation_run_lines l
JOIN depreciation_runs run ON run.id = l.run_id
WHERE run.status = 'POSTED'
GROUP BY l.asset_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]float64)
	for rows.Next() {
		var assetID int64
		var total float64
		if err := rows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		out[assetID] = total
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

func (r *txRepository) InsertRun(ctx context.Context, run DepreciationRun) (DepreciationRun, error) {
	inserted, err := scanRun(r.tx.QueryRow(ctx, `INSERT INTO depreciation_runs (fiscal_year, fiscal_month, status, total_amount, created_by)
VALUES ($1,$2,'CALCULATED',$3,$4)
RETURNING `+runColumns, run.FiscalYear, run.FiscalMonth, run.TotalAmount, run.CreatedBy))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return DepreciationRun{}, ErrPeriodAlreadyCalculated
		}
		return DepreciationRun{}, err
	}
	batch := &pgx.Batch{}
	for _, line := range run.Lines {
		batch.Queue(`INSERT INTO depreciation_run_lines (run_id, asset_id, amount, expense_account_id, accumulated_account_id)
VALUES ($1,$2,$3,$4,$5)`, inserted.ID, line.AssetID, line.Amount, line.ExpenseAccountID, line.AccumulatedAccountID)
	}
	results := r.tx.SendBatch(ctx, batch)
	for range run.Lines {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return DepreciationRun{}, err
		}
	}
	if err := results.Close(); err != nil {
		return DepreciationRun{}, err
	}
	inserted.Lines, err = loadRunLines(ctx, r.tx, inserted.ID)
	return inserted, err
}

func (r *txRepository) GetRunForUpdate(ctx context.Context, id int64) (DepreciationRun, error) {
	run, err := scanRun(r.tx.QueryRow(ctx, `SELECT `+runColumns+` FROM depreciation_runs WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return DepreciationRun{}, err
	}
	run.Lines, err = loadRunLines(ctx, r.tx, run.ID)
	return run, err
}

func (r *txRepository) MarkPosted(ctx context.Context, runID, journalEntryID, postedBy int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE depreciation_runs
SET status='POSTED', journal_entry_id=$2, posted_by=$3, posted_at=NOW(), updated_at=NOW()
WHERE id=$1 AND status='CALCULATED'`, runID, journalEntryID, postedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrInvalidTransition
	}
	return nil
}

func (r *txRepository) MarkReversed(ctx context.Context, runID, reversalEntryID, reversedBy int64, reason string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE depreciation_runs
SET status='REVERSED', reversal_entry_id=$2, reversed_by=$3, reversed_at=NOW(), reversal_reason=$4, updated_at=NOW()
WHERE id=$1 AND status='POSTED'`, runID, reversalEntryID, reversedBy, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrInvalidTransition
	}
	return nil
}

func (r *txRepository) Journals() journals.TxRepository {
	return journals.NewTxRepository(r.tx)
}
