package periods

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/finledger/finledger/internal/accounting/shared"
	internalShared "github.com/finledger/finledger/internal/shared"
)

// MinReopenReasonLen is the shortest reason accepted when reopening a closed
// period. Reopening is audited, so the reason must carry some substance.
const MinReopenReasonLen = 10

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service is the fiscal period gate. Posting paths ask IsOpen before writing
// and re-check status with GetForUpdate inside their own transaction.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, key Key) (FiscalPeriod, error) {
	if !key.Valid() {
		return FiscalPeriod{}, fmt.Errorf("periods: invalid key %d-%02d", key.Year, key.Month)
	}
	return s.repo.Get(ctx, key)
}

func (s *Service) List(ctx context.Context, fiscalYear int) ([]FiscalPeriod, error) {
	return s.repo.List(ctx, fiscalYear)
}

// IsOpen reports whether the period accepts postings. A period that has never
// been touched is created OPEN on first use.
func (s *Service) IsOpen(ctx context.Context, key Key) (bool, error) {
	if !key.Valid() {
		return false, fmt.Errorf("periods: invalid key %d-%02d", key.Year, key.Month)
	}
	period, err := s.repo.Get(ctx, key)
	if errors.Is(err, shared.ErrNotFound) {
		period, err = s.repo.EnsureOpen(ctx, key)
	}
	if err != nil {
		return false, err
	}
	return period.Status == PeriodStatusOpen, nil
}

// Close transitions an open period to CLOSED.
func (s *Service) Close(ctx context.Context, key Key, closedBy int64) (FiscalPeriod, error) {
	return s.transition(ctx, key, PeriodStatusClosed, closedBy, nil)
}

// Reopen transitions a closed period back to OPEN. The reason is mandatory
// and recorded on the period row and in the audit trail.
func (s *Service) Reopen(ctx context.Context, key Key, reason string, reopenedBy int64) (FiscalPeriod, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < MinReopenReasonLen {
		return FiscalPeriod{}, fmt.Errorf("periods: reopen reason must be at least %d characters: %w", MinReopenReasonLen, shared.ErrInvalidTransition)
	}
	return s.transition(ctx, key, PeriodStatusOpen, reopenedBy, &reason)
}

// Lock transitions a period to LOCKED. Locking is terminal.
func (s *Service) Lock(ctx context.Context, key Key, lockedBy int64) (FiscalPeriod, error) {
	return s.transition(ctx, key, PeriodStatusLocked, lockedBy, nil)
}

func (s *Service) transition(ctx context.Context, key Key, target PeriodStatus, actorID int64, reason *string) (FiscalPeriod, error) {
	if !key.Valid() {
		return FiscalPeriod{}, fmt.Errorf("periods: invalid key %d-%02d", key.Year, key.Month)
	}
	var updated FiscalPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, key)
		if err != nil {
			return err
		}
		if err := validateTransition(current.Status, target); err != nil {
			return err
		}
		updated, err = tx.UpdateStatus(ctx, StatusUpdate{
			PeriodID: current.ID,
			Status:   target,
			ActorID:  actorID,
			Reason:   reason,
		})
		return err
	})
	if err != nil {
		return FiscalPeriod{}, err
	}
	if s.audit != nil {
		meta := map[string]any{"period": fmt.Sprintf("%d-%02d", key.Year, key.Month), "status": string(target)}
		if reason != nil {
			meta["reason"] = *reason
		}
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			ActorID:  actorID,
			Action:   "period." + strings.ToLower(string(target)),
			Entity:   "fiscal_period",
			EntityID: fmt.Sprintf("%d", updated.ID),
			Meta:     meta,
			At:       s.now(),
		})
	}
	return updated, nil
}

func validateTransition(current, target PeriodStatus) error {
	if current == PeriodStatusLocked {
		return shared.ErrPeriodLocked
	}
	switch target {
	case PeriodStatusClosed:
		if current == PeriodStatusOpen {
			return nil
		}
	case PeriodStatusOpen:
		if current == PeriodStatusClosed {
			return nil
		}
	case PeriodStatusLocked:
		if current == PeriodStatusOpen || current == PeriodStatusClosed {
			return nil
		}
	}
	return shared.ErrInvalidTransition
}
