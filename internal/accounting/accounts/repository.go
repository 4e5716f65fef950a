package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finledger/finledger/internal/accounting/shared"
)

// ErrCodeTaken indicates the human-assigned account code already exists.
var ErrCodeTaken = errors.New("accounts: code already in use")

type Repository interface {
	List(ctx context.Context) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	Create(ctx context.Context, in Account) (Account, error)
	Delete(ctx context.Context, id int64) error
	// HasPostedLines reports whether any posted journal line references the
	// account, which freezes it against deletes.
	HasPostedLines(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, code, name, type, normal_balance, is_detail_account, is_system_account, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.IsDetailAccount, &a.IsSystemAccount, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *repository) GetByIDs(ctx context.Context, ids []int64) (map[int64]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *repository) GetByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
}

func (r *repository) Create(ctx context.Context, in Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (code, name, type, normal_balance, is_detail_account, is_system_account, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+accountColumns,
		in.Code, in.Name, in.Type, in.NormalBalance, in.IsDetailAccount, in.IsSystemAccount, in.IsActive)
	a, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrCodeTaken
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) HasPostedLines(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM journal_lines l JOIN journal_entries e ON e.id = l.journal_entry_id
WHERE l.account_id=$1 AND e.status='POSTED')`, id).Scan(&exists)
	return exists, err
}
