package ingest

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
	// GetProcessedSuccess returns the successful processing record for the
	// event id, if one exists. Failed attempts do not count.
	GetProcessedSuccess(ctx context.Context, eventID string) (ProcessedEvent, bool, error)
	ListProcessed(ctx context.Context, limit int) ([]ProcessedEvent, error)
	// RecordFailure durably upserts a FAILED attempt outside the posting
	// transaction, so the record survives the rollback it accompanies.
	RecordFailure(ctx context.Context, eventID, eventType, errMsg string) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository spans the single atomic boundary of event ingestion: the
// processed-event record and the journal entry commit or roll back together.
type TxRepository interface {
	// MarkSuccess upserts the SUCCESS record. When another writer already
	// recorded success for the event id, it fails with ErrDuplicateEvent so
	// the losing transaction rolls back its journal entry.
	MarkSuccess(ctx context.Context, eventID, eventType string, journalEntryID int64) error
	Journals() journals.TxRepository
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const processedColumns = `id, event_id, event_type, outcome, error, journal_entry_id, attempts, processed_at`

func scanProcessed(row pgx.Row) (ProcessedEvent, error) {
	var p ProcessedEvent
	err := row.Scan(&p.ID, &p.EventID, &p.EventType, &p.Outcome, &p.Error, &p.JournalEntryID, &p.Attempts, &p.ProcessedAt)
	return p, err
}

func (r *repository) GetProcessedSuccess(ctx context.Context, eventID string) (ProcessedEvent, bool, error) {
	p, err := scanProcessed(r.db.QueryRow(ctx, `SELECT `+processedColumns+` FROM processed_events WHERE event_id=$1 AND outcome='SUCCESS'`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProcessedEvent{}, false, nil
		}
		return ProcessedEvent{}, false, err
	}
	return p, true, nil
}

func (r *repository) ListProcessed(ctx context.Context, limit int) ([]ProcessedEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+processedColumns+` FROM processed_events ORDER BY processed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProcessedEvent
	for rows.Next() {
		p, err := scanProcessed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) RecordFailure(ctx context.Context, eventID, eventType, errMsg string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO processed_events (event_id, event_type, outcome, error, attempts)
VALUES ($1,$2,'FAILED',$3,1)
ON CONFLICT (event_id) DO UPDATE
SET error=EXCLUDED.error, attempts=processed_events.attempts+1, processed_at=NOW()
WHERE processed_events.outcome='FAILED'`, eventID, eventType, errMsg)
	return err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) MarkSuccess(ctx context.Context, eventID, eventType string, journalEntryID int64) error {
	cmd, err := r.tx.Exec(ctx, `INSERT INTO processed_events (event_id, event_type, outcome, error, journal_entry_id, attempts)
VALUES ($1,$2,'SUCCESS',NULL,$3,1)
ON CONFLICT (event_id) DO UPDATE
SET outcome='SUCCESS', error=NULL, journal_entry_id=EXCLUDED.journal_entry_id, attempts=processed_events.attempts+1, processed_at=NOW()
WHERE processed_events.outcome='FAILED'`, eventID, eventType, journalEntryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrDuplicateEvent
		}
		return err
	}
	// Zero rows means a SUCCESS row already exists: a concurrent writer won.
	if cmd.RowsAffected() == 0 {
		return shared.ErrDuplicateEvent
	}
	return nil
}

func (r *txRepository) Journals() journals.TxRepository {
	return journals.NewTxRepository(r.tx)
}
