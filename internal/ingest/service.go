package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finledger/finledger/internal/accounting/journals"
	"github.com/finledger/finledger/internal/accounting/mappings"
	"github.com/finledger/finledger/internal/accounting/shared"
)

// MappingPort resolves event posting rules to ledger accounts.
type MappingPort interface {
	ResolveAll(ctx context.Context, eventType string, keys []string) (map[string]int64, error)
}

// LedgerPort is the slice of the journal engine the ingestor needs.
type LedgerPort interface {
	ValidateLines(ctx context.Context, in journals.CreateInput) error
	CreatePostedTx(ctx context.Context, tx journals.TxRepository, in journals.CreateInput, actorID int64) (journals.JournalEntry, error)
}

// Service translates external business events into posted journal entries,
// exactly once per event id.
type Service struct {
	repo     Repository
	mappings MappingPort
	ledger   LedgerPort
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, mappingRepo MappingPort, ledger LedgerPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, mappings: mappingRepo, ledger: ledger, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) ListProcessed(ctx context.Context, limit int) ([]ProcessedEvent, error) {
	return s.repo.ListProcessed(ctx, limit)
}

// Handle ingests one event. The sequence is: idempotency check, mapping and
// period resolution, then one transaction that records success and posts the
// entry together. Failures are durably recorded before the error is returned,
// so a failed event stays visible for follow-up without blocking a retry.
func (s *Service) Handle(ctx context.Context, event ExternalEvent) (Result, error) {
	event.EventType = strings.ToUpper(strings.TrimSpace(event.EventType))
	if err := event.Validate(); err != nil {
		return Result{}, err
	}
	if prior, ok, err := s.repo.GetProcessedSuccess(ctx, event.EventID); err != nil {
		return Result{}, err
	} else if ok {
		result := Result{Duplicate: true}
		if prior.JournalEntryID != nil {
			result.JournalEntryID = *prior.JournalEntryID
		}
		if s.logger != nil {
			s.logger.Info("duplicate event skipped", slog.String("event_id", event.EventID), slog.String("event_type", event.EventType))
		}
		return result, nil
	}

	result, err := s.process(ctx, event)
	if err != nil {
		if recordErr := s.repo.RecordFailure(ctx, event.EventID, event.EventType, err.Error()); recordErr != nil && s.logger != nil {
			s.logger.Error("record event failure", slog.String("event_id", event.EventID), slog.Any("error", recordErr))
		}
		return Result{}, err
	}
	return result, nil
}

func (s *Service) process(ctx context.Context, event ExternalEvent) (Result, error) {
	input, err := s.buildEntry(ctx, event)
	if err != nil {
		return Result{}, err
	}
	if err := s.ledger.ValidateLines(ctx, input); err != nil {
		return Result{}, err
	}
	var entry journals.JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.ledger.CreatePostedTx(ctx, tx.Journals(), input, event.ActorID)
		if err != nil {
			return err
		}
		return tx.MarkSuccess(ctx, event.EventID, event.EventType, entry.ID)
	})
	if err != nil {
		if errors.Is(err, shared.ErrDuplicateEvent) {
			// A concurrent writer posted this event first; our entry rolled
			// back, so the ledger effect is still exactly once.
			return Result{Duplicate: true}, nil
		}
		return Result{}, err
	}
	if s.logger != nil {
		s.logger.Info("event posted",
			slog.String("event_id", event.EventID),
			slog.String("event_type", event.EventType),
			slog.Int64("journal_entry_id", entry.ID),
			slog.Int64("entry_number", entry.EntryNumber))
	}
	return Result{JournalEntryID: entry.ID, EntryNumber: entry.EntryNumber}, nil
}

// buildEntry resolves posting rules and assembles the balanced line set.
// Partial configuration fails here, before any mutation.
func (s *Service) buildEntry(ctx context.Context, event ExternalEvent) (journals.CreateInput, error) {
	keys := []string{mappings.KeyCash, mappings.KeyRevenue}
	if event.TotalTax > 0 {
		keys = append(keys, mappings.KeyTaxPayable)
	}
	if event.TotalDiscount > 0 {
		keys = append(keys, mappings.KeyDiscount)
	}
	resolved, err := s.mappings.ResolveAll(ctx, event.EventType, keys)
	if err != nil {
		return journals.CreateInput{}, err
	}

	var lines []journals.LineInput
	tag := func(line journals.LineInput) journals.LineInput {
		line.CustomerID = event.CustomerID
		line.SalesPersonID = event.SalesPersonID
		line.WarehouseID = event.WarehouseID
		line.SalesChannel = event.SalesChannel
		return line
	}
	switch event.EventType {
	case EventOrderCompleted:
		lines = append(lines, tag(journals.LineInput{AccountID: resolved[mappings.KeyCash], Direction: journals.DirectionDebit, Amount: event.GrandTotal}))
		if event.TotalDiscount > 0 {
			lines = append(lines, tag(journals.LineInput{AccountID: resolved[mappings.KeyDiscount], Direction: journals.DirectionDebit, Amount: event.TotalDiscount}))
		}
		lines = append(lines, tag(journals.LineInput{AccountID: resolved[mappings.KeyRevenue], Direction: journals.DirectionCredit, Amount: event.Subtotal}))
		if event.TotalTax > 0 {
			lines = append(lines, tag(journals.LineInput{AccountID: resolved[mappings.KeyTaxPayable], Direction: journals.DirectionCredit, Amount: event.TotalTax}))
		}
	case EventOrderRefunded:
		lines = append(lines, tag(journals.LineInput{AccountID: resolved[mappings.KeyRevenue], Direction: journals.DirectionDebit, Amount: event.Subtotal}))
		if event.TotalTax > 0 {
			lines = append(lines, tag(journals.LineInput{AccountID: resolved[mappings.KeyTaxPayable], Direction: journals.DirectionDebit, Amount: event.TotalTax}))
		}
		lines = append(lines, tag(journals.LineInput{AccountID: resolved[mappings.KeyCash], Direction: journals.DirectionCredit, Amount: event.GrandTotal}))
		if event.TotalDiscount > 0 {
			lines = append(lines, tag(journals.LineInput{AccountID: resolved[mappings.KeyDiscount], Direction: journals.DirectionCredit, Amount: event.TotalDiscount}))
		}
	default:
		return journals.CreateInput{}, fmt.Errorf("ingest: unsupported event type %q", event.EventType)
	}

	return journals.CreateInput{
		EntryDate:         event.BusinessDate,
		EntryType:         journals.EntryTypeSystem,
		SourceService:     "ingest:" + strings.ToLower(event.EventType),
		SourceReferenceID: event.EventID,
		Description:       fmt.Sprintf("%s %s", event.EventType, event.EventID),
		CreatedBy:         event.ActorID,
		Lines:             lines,
	}, nil
}
