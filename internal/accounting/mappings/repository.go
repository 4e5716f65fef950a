package mappings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finledger/finledger/internal/accounting/shared"
)

type Repository interface {
	Get(ctx context.Context, eventType, key string) (AccountMapping, error)
	// ResolveAll loads every mapping for an event type in one query. Missing
	// required keys surface as ErrAccountNotConfigured before any mutation.
	ResolveAll(ctx context.Context, eventType string, keys []string) (map[string]int64, error)
	Upsert(ctx context.Context, in AccountMapping) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, eventType, key string) (AccountMapping, error) {
	if eventType == "" || key == "" {
		return AccountMapping{}, errors.New("mappings: event type and key required")
	}
	var mapping AccountMapping
	err := r.db.QueryRow(ctx, `SELECT event_type, key, account_id, created_at, updated_at FROM account_mappings WHERE event_type=$1 AND key=$2`,
		strings.ToUpper(eventType), key).
		Scan(&mapping.EventType, &mapping.Key, &mapping.AccountID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, shared.ErrAccountNotConfigured
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

func (r *repository) ResolveAll(ctx context.Context, eventType string, keys []string) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT key, account_id FROM account_mappings WHERE event_type=$1 AND key = ANY($2)`,
		strings.ToUpper(eventType), keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64, len(keys))
	for rows.Next() {
		var key string
		var accountID int64
		if err := rows.Scan(&key, &accountID); err != nil {
			return nil, err
		}
		out[key] = accountID
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, key := range keys {
		if _, ok := out[key]; !ok {
			return nil, fmt.Errorf("event type %s key %s: %w", eventType, key, shared.ErrAccountNotConfigured)
		}
	}
	return out, nil
}

func (r *repository) Upsert(ctx context.Context, in AccountMapping) error {
	_, err := r.db.Exec(ctx, `INSERT INTO account_mappings (event_type, key, account_id)
VALUES ($1,$2,$3)
ON CONFLICT (event_type, key) DO UPDATE SET account_id=EXCLUDED.account_id, updated_at=NOW()`,
		strings.ToUpper(in.EventType), in.Key, in.AccountID)
	return err
}
