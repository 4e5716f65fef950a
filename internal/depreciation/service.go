package depreciation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/finledger/finledger/internal/accounting/journals"
	"github.com/finledger/finledger/internal/accounting/mappings"
	"github.com/finledger/finledger/internal/accounting/periods"
	"github.com/finledger/finledger/internal/accounting/shared"
	internalShared "github.com/finledger/finledger/internal/shared"
)

// MappingPort resolves the default expense and contra-asset accounts.
type MappingPort interface {
	ResolveAll(ctx context.Context, eventType string, keys []string) (map[string]int64, error)
}

// LedgerPort is the slice of the journal engine the run engine needs.
type LedgerPort interface {
	ValidateLines(ctx context.Context, in journals.CreateInput) error
	CreatePostedTx(ctx context.Context, tx journals.TxRepository, in journals.CreateInput, actorID int64) (journals.JournalEntry, error)
}

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// mappingEventType scopes depreciation account mappings in the rules table.
const mappingEventType = "DEPRECIATION.RUN"

// Service owns the depreciation run lifecycle. Calculation is pure
// bookkeeping of schedule lines; only posting touches the ledger, through the
// journal engine and inside one transaction with the run transition.
type Service struct {
	repo     Repository
	mappings MappingPort
	ledger   LedgerPort
	audit    AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, mappingRepo MappingPort, ledger LedgerPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, mappings: mappingRepo, ledger: ledger, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) GetRun(ctx context.Context, id int64) (DepreciationRun, error) {
	return s.repo.GetRun(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, limit int) ([]DepreciationRun, error) {
	return s.repo.ListRuns(ctx, limit)
}

func (s *Service) CreateAsset(ctx context.Context, asset FixedAsset) (FixedAsset, error) {
	asset.AssetCode = strings.TrimSpace(asset.AssetCode)
	asset.Name = strings.TrimSpace(asset.Name)
	if asset.AssetCode == "" || asset.Name == "" {
		return FixedAsset{}, errors.New("depreciation: asset code and name required")
	}
	if asset.Cost <= 0 {
		return FixedAsset{}, errors.New("depreciation: cost must be positive")
	}
	if asset.SalvageValue < 0 || asset.SalvageValue >= asset.Cost {
		return FixedAsset{}, errors.New("depreciation: salvage value must be non-negative and below cost")
	}
	if asset.UsefulLifeMonths <= 0 {
		return FixedAsset{}, errors.New("depreciation: useful life must be positive")
	}
	if asset.Method == "" {
		asset.Method = MethodStraightLine
	}
	if asset.Method != MethodStraightLine {
		return FixedAsset{}, fmt.Errorf("depreciation: unsupported method %q", asset.Method)
	}
	if asset.InServiceDate.IsZero() {
		asset.InServiceDate = asset.AcquisitionDate
	}
	asset.IsActive = true
	return s.repo.CreateAsset(ctx, asset)
}

// Preview computes the period's schedule without persisting anything.
func (s *Service) Preview(ctx context.Context, year, month int) (Preview, error) {
	if err := validatePeriod(year, month); err != nil {
		return Preview{}, err
	}
	lines, total, err := s.buildSchedule(ctx, year, month)
	if err != nil {
		return Preview{}, err
	}
	return Preview{FiscalYear: year, FiscalMonth: month, TotalAmount: total, Lines: lines}, nil
}

// Calculate persists a CALCULATED run for the period. One live run per
// period: a second calculation fails until the first is reversed.
func (s *Service) Calculate(ctx context.Context, year, month int, actorID int64) (DepreciationRun, error) {
	if err := validatePeriod(year, month); err != nil {
		return DepreciationRun{}, err
	}
	if exists, err := s.repo.HasRunForPeriod(ctx, year, month); err != nil {
		return DepreciationRun{}, err
	} else if exists {
		return DepreciationRun{}, ErrPeriodAlreadyCalculated
	}
	lines, total, err := s.buildSchedule(ctx, year, month)
	if err != nil {
		return DepreciationRun{}, err
	}
	if len(lines) == 0 {
		return DepreciationRun{}, ErrNothingToDepreciate
	}

	var run DepreciationRun
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		run, err = tx.InsertRun(ctx, DepreciationRun{
			FiscalYear:  year,
			FiscalMonth: month,
			TotalAmount: total,
			CreatedBy:   actorID,
			Lines:       lines,
		})
		return err
	})
	if err != nil {
		return DepreciationRun{}, err
	}
	if s.logger != nil {
		s.logger.Info("depreciation run calculated",
			slog.Int64("run_id", run.ID),
			slog.Int("fiscal_year", year),
			slog.Int("fiscal_month", month),
			slog.Int("assets", len(run.Lines)),
			slog.Float64("total", total))
	}
	s.recordAudit(ctx, actorID, "depreciation.calculate", run.ID, map[string]any{"fiscal_year": year, "fiscal_month": month, "total": total})
	return run, nil
}

// Post books the run's aggregate charge as one posted journal entry: debit
// the expense accounts, credit the accumulated-depreciation contra accounts,
// aggregated per account pair. The entry and the run transition commit
// together.
func (s *Service) Post(ctx context.Context, runID, postedBy int64) (DepreciationRun, error) {
	peek, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return DepreciationRun{}, err
	}
	input := s.buildEntryInput(peek, postedBy)
	if err := s.ledger.ValidateLines(ctx, input); err != nil {
		return DepreciationRun{}, err
	}

	var run DepreciationRun
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRunForUpdate(ctx, runID)
		if err != nil {
			return err
		}
		switch current.Status {
		case RunStatusPosted:
			return shared.ErrAlreadyPosted
		case RunStatusReversed:
			return shared.ErrInvalidTransition
		case RunStatusCalculated:
		default:
			return shared.ErrInvalidTransition
		}
		entry, err := s.ledger.CreatePostedTx(ctx, tx.Journals(), s.buildEntryInput(current, postedBy), postedBy)
		if err != nil {
			return err
		}
		if err := tx.MarkPosted(ctx, current.ID, entry.ID, postedBy); err != nil {
			return err
		}
		now := s.now()
		current.Status = RunStatusPosted
		current.JournalEntryID = &entry.ID
		current.PostedBy = &postedBy
		current.PostedAt = &now
		run = current
		return nil
	})
	if err != nil {
		return DepreciationRun{}, err
	}
	s.recordAudit(ctx, postedBy, "depreciation.post", run.ID, map[string]any{"journal_entry_id": *run.JournalEntryID})
	return run, nil
}

// Reverse books a mirror entry negating a posted run and marks it REVERSED.
// The original period must still accept postings; reversal across a closed
// period is rejected rather than silently rewriting history.
func (s *Service) Reverse(ctx context.Context, runID int64, reason string, reversedBy int64) (DepreciationRun, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return DepreciationRun{}, errors.New("depreciation: reversal reason required")
	}
	var run DepreciationRun
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRunForUpdate(ctx, runID)
		if err != nil {
			return err
		}
		if current.Status != RunStatusPosted {
			return shared.ErrInvalidTransition
		}
		input := s.buildEntryInput(current, reversedBy)
		input.Description = fmt.Sprintf("Reversal of depreciation run %d: %s", current.ID, reason)
		input.SourceService = "depreciation:reversal"
		input.EntryType = journals.EntryTypeAdjustment
		input.ReversalOf = current.JournalEntryID
		input.Lines = mirrorLines(input.Lines)
		entry, err := s.ledger.CreatePostedTx(ctx, tx.Journals(), input, reversedBy)
		if err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, current.ID, entry.ID, reversedBy, reason); err != nil {
			return err
		}
		now := s.now()
		current.Status = RunStatusReversed
		current.ReversalEntryID = &entry.ID
		current.ReversedBy = &reversedBy
		current.ReversedAt = &now
		current.ReversalReason = &reason
		run = current
		return nil
	})
	if err != nil {
		return DepreciationRun{}, err
	}
	s.recordAudit(ctx, reversedBy, "depreciation.reverse", run.ID, map[string]any{"reason": reason, "reversal_entry_id": *run.ReversalEntryID})
	return run, nil
}

// buildSchedule computes each active asset's charge for the period,
// clamped so lifetime depreciation never exceeds cost minus salvage.
func (s *Service) buildSchedule(ctx context.Context, year, month int) ([]RunLine, float64, error) {
	assets, err := s.repo.ListActiveAssets(ctx)
	if err != nil {
		return nil, 0, err
	}
	recognised, err := s.repo.PostedAmountsByAsset(ctx)
	if err != nil {
		return nil, 0, err
	}

	var defaults map[string]int64
	needsDefaults := false
	for _, asset := range assets {
		if asset.ExpenseAccountID == nil || asset.AccumulatedAccountID == nil {
			needsDefaults = true
			break
		}
	}
	if needsDefaults {
		defaults, err = s.mappings.ResolveAll(ctx, mappingEventType, []string{mappings.KeyDeprExpense, mappings.KeyAccumDepr})
		if err != nil {
			return nil, 0, err
		}
	}

	periodEnd := endOfPeriod(year, month)
	var lines []RunLine
	var total float64
	for _, asset := range assets {
		if asset.InServiceDate.After(periodEnd) {
			continue
		}
		amount := asset.MonthlyAmount()
		remaining := asset.DepreciableBase() - recognised[asset.ID]
		if remaining < amount {
			amount = remaining
		}
		amount = math.Round(amount*100) / 100
		if amount <= 0 {
			continue
		}
		expenseID := defaults[mappings.KeyDeprExpense]
		if asset.ExpenseAccountID != nil {
			expenseID = *asset.ExpenseAccountID
		}
		accumulatedID := defaults[mappings.KeyAccumDepr]
		if asset.AccumulatedAccountID != nil {
			accumulatedID = *asset.AccumulatedAccountID
		}
		lines = append(lines, RunLine{
			AssetID:              asset.ID,
			AssetCode:            asset.AssetCode,
			Amount:               amount,
			ExpenseAccountID:     expenseID,
			AccumulatedAccountID: accumulatedID,
		})
		total += amount
	}
	return lines, math.Round(total*100) / 100, nil
}

// buildEntryInput aggregates schedule lines per (expense, accumulated)
// account pair so a thousand assets sharing one category still produce a
// two-line entry.
func (s *Service) buildEntryInput(run DepreciationRun, actorID int64) journals.CreateInput {
	type pair struct{ expense, accumulated int64 }
	sums := make(map[pair]float64)
	for _, line := range run.Lines {
		sums[pair{line.ExpenseAccountID, line.AccumulatedAccountID}] += line.Amount
	}
	pairs := make([]pair, 0, len(sums))
	for p := range sums {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].expense != pairs[j].expense {
			return pairs[i].expense < pairs[j].expense
		}
		return pairs[i].accumulated < pairs[j].accumulated
	})

	var lines []journals.LineInput
	for _, p := range pairs {
		amount := math.Round(sums[p]*100) / 100
		lines = append(lines,
			journals.LineInput{AccountID: p.expense, Direction: journals.DirectionDebit, Amount: amount},
			journals.LineInput{AccountID: p.accumulated, Direction: journals.DirectionCredit, Amount: amount},
		)
	}
	return journals.CreateInput{
		EntryDate:         endOfPeriod(run.FiscalYear, run.FiscalMonth),
		EntryType:         journals.EntryTypeSystem,
		SourceService:     "depreciation:run",
		SourceReferenceID: fmt.Sprintf("run-%d", run.ID),
		Description:       fmt.Sprintf("Depreciation %04d-%02d", run.FiscalYear, run.FiscalMonth),
		CreatedBy:         actorID,
		Lines:             lines,
	}
}

func mirrorLines(lines []journals.LineInput) []journals.LineInput {
	out := make([]journals.LineInput, 0, len(lines))
	for _, line := range lines {
		direction := journals.DirectionDebit
		if line.Direction == journals.DirectionDebit {
			direction = journals.DirectionCredit
		}
		line.Direction = direction
		out = append(out, line)
	}
	return out
}

func validatePeriod(year, month int) error {
	if !(periods.Key{Year: year, Month: month}).Valid() {
		return fmt.Errorf("depreciation: invalid fiscal period %d-%d", year, month)
	}
	return nil
}

func endOfPeriod(year, month int) time.Time {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, runID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "depreciation_run",
		EntityID: fmt.Sprintf("%d", runID),
		Meta:     meta,
		At:       s.now(),
	})
}
