package journals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/finledger/finledger/internal/accounting/accounts"
	"github.com/finledger/finledger/internal/accounting/periods"
	"github.com/finledger/finledger/internal/accounting/shared"
	internalShared "github.com/finledger/finledger/internal/shared"
)

// DirectoryPort resolves and validates line accounts in one batch.
type DirectoryPort interface {
	ResolvePostable(ctx context.Context, ids []int64) (map[int64]accounts.Account, error)
}

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service is the single authority for ledger mutation. Every producer of
// journal entries, manual or system-driven, goes through it.
type Service struct {
	repo      Repository
	directory DirectoryPort
	audit     AuditPort
	now       func() time.Time
}

func NewService(repo Repository, directory DirectoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, directory: directory, audit: audit, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	return s.repo.List(ctx, filter)
}

// ValidateLines runs input validation plus the account directory check
// without touching the ledger. Producers that own their transaction call it
// before entering CreatePostedTx.
func (s *Service) ValidateLines(ctx context.Context, in CreateInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if s.directory != nil {
		if _, err := s.directory.ResolvePostable(ctx, in.AccountIDs()); err != nil {
			return err
		}
	}
	return nil
}

// Create validates the input and persists a DRAFT entry. Drafts carry no
// ledger effect, so the period gate is not consulted until posting.
func (s *Service) Create(ctx context.Context, in CreateInput) (JournalEntry, error) {
	if err := s.ValidateLines(ctx, in); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertEntry(ctx, in, EntryStatusDraft, nil)
		if err != nil {
			return err
		}
		lines, err := tx.InsertLines(ctx, inserted.ID, in.Lines)
		if err != nil {
			return err
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// Post transitions a draft to POSTED. Balance is re-validated and the fiscal
// period status is re-checked under a row lock in the same transaction that
// marks the entry posted, so a concurrent period close cannot race it.
func (s *Service) Post(ctx context.Context, entryID, postedBy int64) (JournalEntry, error) {
	if entryID == 0 {
		return JournalEntry{}, errors.New("journals: entry id required")
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, lines, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		switch current.Status {
		case EntryStatusPosted:
			return shared.ErrAlreadyPosted
		case EntryStatusVoided:
			return shared.ErrAlreadyVoided
		case EntryStatusDraft:
		default:
			return shared.ErrInvalidTransition
		}
		debit, credit := sumLines(lines)
		if math.Abs(debit-credit) > shared.Epsilon {
			return shared.ErrUnbalanced
		}
		if err := s.requireOpenPeriod(ctx, tx, periods.Key{Year: current.FiscalYear, Month: current.FiscalMonth}); err != nil {
			return err
		}
		if err := tx.MarkPosted(ctx, current.ID, postedBy); err != nil {
			return err
		}
		now := s.now()
		current.Status = EntryStatusPosted
		current.PostedBy = &postedBy
		current.PostedAt = &now
		current.Lines = lines
		entry = current
		return tx.InsertNotification(ctx, buildNotification(current, postedBy, now))
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, postedBy, "journal.post", entry, map[string]any{"entry_number": entry.EntryNumber})
	return entry, nil
}

// CreatePosted creates and posts in one transaction. System producers use it
// so no window exists where the entry is a draft while the producing event is
// already marked done.
func (s *Service) CreatePosted(ctx context.Context, in CreateInput, actorID int64) (JournalEntry, error) {
	if err := s.ValidateLines(ctx, in); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.CreatePostedTx(ctx, tx, in, actorID)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, actorID, "journal.post", entry, map[string]any{"entry_number": entry.EntryNumber, "source_service": entry.SourceService})
	return entry, nil
}

// CreatePostedTx runs the create+post sequence on an externally owned
// transaction. Callers that must commit a journal entry atomically with their
// own records (event ingestion, depreciation runs) share the tx boundary here.
// Input validation is the caller's duty via ValidateLines.
func (s *Service) CreatePostedTx(ctx context.Context, tx TxRepository, in CreateInput, actorID int64) (JournalEntry, error) {
	if err := s.requireOpenPeriod(ctx, tx, periods.KeyForDate(in.EntryDate)); err != nil {
		return JournalEntry{}, err
	}
	inserted, err := tx.InsertEntry(ctx, in, EntryStatusPosted, &actorID)
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := tx.InsertLines(ctx, inserted.ID, in.Lines)
	if err != nil {
		return JournalEntry{}, err
	}
	inserted.Lines = lines
	now := s.now()
	if err := tx.InsertNotification(ctx, buildNotification(inserted, actorID, now)); err != nil {
		return JournalEntry{}, err
	}
	return inserted, nil
}

// Void marks a posted entry VOIDED. Nothing is deleted; balances computed
// from posted lines simply exclude voided entries, and the financial effect
// is negated by a subsequent reversing entry when needed.
func (s *Service) Void(ctx context.Context, entryID int64, reason string, voidedBy int64) (JournalEntry, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return JournalEntry{}, errors.New("journals: void reason required")
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, lines, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		switch current.Status {
		case EntryStatusVoided:
			return shared.ErrAlreadyVoided
		case EntryStatusDraft:
			return shared.ErrInvalidTransition
		case EntryStatusPosted:
		default:
			return shared.ErrInvalidTransition
		}
		if err := s.requireOpenPeriod(ctx, tx, periods.Key{Year: current.FiscalYear, Month: current.FiscalMonth}); err != nil {
			return err
		}
		if err := tx.MarkVoided(ctx, current.ID, voidedBy, reason); err != nil {
			return err
		}
		now := s.now()
		current.Status = EntryStatusVoided
		current.VoidedBy = &voidedBy
		current.VoidedAt = &now
		current.VoidReason = &reason
		current.Lines = lines
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, voidedBy, "journal.void", entry, map[string]any{"reason": reason})
	return entry, nil
}

// Reverse posts a mirror-image entry negating a posted entry's effect. Both
// entries remain in the ledger.
func (s *Service) Reverse(ctx context.Context, entryID int64, memo string, actorID int64) (JournalEntry, error) {
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, lines, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if original.Status != EntryStatusPosted {
			return shared.ErrInvalidTransition
		}
		originalID := original.ID
		in := CreateInput{
			EntryDate:         original.EntryDate,
			EntryType:         EntryTypeAdjustment,
			SourceService:     original.SourceService + ":REVERSAL",
			SourceReferenceID: original.SourceReferenceID,
			Description:       defaultReversalMemo(memo, original.EntryNumber),
			CreatedBy:         actorID,
			ReversalOf:        &originalID,
			Lines:             reverseLines(lines),
		}
		reversal, err = s.CreatePostedTx(ctx, tx, in, actorID)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, actorID, "journal.reverse", reversal, map[string]any{"reversed_entry_id": entryID})
	return reversal, nil
}

// DeleteDraft removes a draft entry. Drafts are not ledger mutations, so
// deletion is allowed; any other status fails the transition check.
func (s *Service) DeleteDraft(ctx context.Context, entryID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, _, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if current.Status != EntryStatusDraft {
			return shared.ErrInvalidTransition
		}
		return tx.DeleteDraft(ctx, current.ID)
	})
}

func (s *Service) requireOpenPeriod(ctx context.Context, tx TxRepository, key periods.Key) error {
	period, err := tx.EnsurePeriodForUpdate(ctx, key)
	if err != nil {
		return err
	}
	switch period.Status {
	case periods.PeriodStatusOpen:
		return nil
	case periods.PeriodStatusLocked:
		return shared.ErrPeriodLocked
	default:
		return shared.ErrPeriodClosed
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entry JournalEntry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta:     meta,
		At:       s.now(),
	})
}

func buildNotification(entry JournalEntry, postedBy int64, at time.Time) PostedNotification {
	lines := make([]NotificationLine, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		lines = append(lines, NotificationLine{AccountID: line.AccountID, Direction: line.Direction, Amount: line.Amount})
	}
	return PostedNotification{
		JournalEntryID: entry.ID,
		EntryNumber:    entry.EntryNumber,
		EntryDate:      entry.EntryDate,
		Description:    entry.Description,
		PostedBy:       postedBy,
		PostedAt:       at,
		Lines:          lines,
	}
}

func reverseLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		direction := DirectionDebit
		if line.Direction == DirectionDebit {
			direction = DirectionCredit
		}
		out = append(out, LineInput{
			AccountID:     line.AccountID,
			Direction:     direction,
			Amount:        line.Amount,
			CustomerID:    line.CustomerID,
			SalesPersonID: line.SalesPersonID,
			WarehouseID:   line.WarehouseID,
			SalesChannel:  line.SalesChannel,
		})
	}
	return out
}

func defaultReversalMemo(memo string, number int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of JE %d", number)
}
