package depreciation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/finledger/internal/accounting/accounts"
	"github.com/finledger/finledger/internal/accounting/journals"
	"github.com/finledger/finledger/internal/accounting/mappings"
	"github.com/finledger/finledger/internal/accounting/periods"
	"github.com/finledger/finledger/internal/accounting/shared"
)

const (
	expenseAccount     = int64(601)
	accumulatedAccount = int64(151)
)

// memLedger implements journals.TxRepository in memory so the run engine can
// exercise the real journal service.
type memLedger struct {
	entries     []journals.JournalEntry
	nextEntryID int64
	nextNumber  int64
}

func newMemLedger() *memLedger {
	return &memLedger{nextEntryID: 1, nextNumber: 9000}
}

func (l *memLedger) InsertEntry(ctx context.Context, in journals.CreateInput, status journals.EntryStatus, postedBy *int64) (journals.JournalEntry, error) {
	entry := journals.JournalEntry{
		ID:            l.nextEntryID,
		EntryNumber:   l.nextNumber,
		EntryDate:     in.EntryDate,
		FiscalYear:    in.EntryDate.Year(),
		FiscalMonth:   int(in.EntryDate.Month()),
		Status:        status,
		EntryType:     in.EntryType,
		SourceService: in.SourceService,
		Description:   in.Description,
		CreatedBy:     in.CreatedBy,
		PostedBy:      postedBy,
		ReversalOf:    in.ReversalOf,
	}
	l.nextEntryID++
	l.nextNumber++
	l.entries = append(l.entries, entry)
	return entry, nil
}

func (l *memLedger) InsertLines(ctx context.Context, entryID int64, lines []journals.LineInput) ([]journals.JournalLine, error) {
	out := make([]journals.JournalLine, 0, len(lines))
	for idx, in := range lines {
		out = append(out, journals.JournalLine{ID: int64(idx + 1), JournalEntryID: entryID, AccountID: in.AccountID, Direction: in.Direction, Amount: in.Amount})
	}
	for i := range l.entries {
		if l.entries[i].ID == entryID {
			l.entries[i].Lines = out
		}
	}
	return out, nil
}

func (l *memLedger) GetEntryForUpdate(ctx context.Context, entryID int64) (journals.JournalEntry, []journals.JournalLine, error) {
	for _, e := range l.entries {
		if e.ID == entryID {
			return e, e.Lines, nil
		}
	}
	return journals.JournalEntry{}, nil, shared.ErrNotFound
}

func (l *memLedger) MarkPosted(ctx context.Context, entryID, postedBy int64) error { return nil }
func (l *memLedger) MarkVoided(ctx context.Context, entryID, voidedBy int64, reason string) error {
	return nil
}
func (l *memLedger) DeleteDraft(ctx context.Context, entryID int64) error { return nil }
func (l *memLedger) InsertNotification(ctx context.Context, n journals.PostedNotification) error {
	return nil
}

func (l *memLedger) EnsurePeriodForUpdate(ctx context.Context, key periods.Key) (periods.FiscalPeriod, error) {
	return periods.FiscalPeriod{FiscalYear: key.Year, FiscalMonth: key.Month, Status: periods.PeriodStatusOpen}, nil
}

type mockRepository struct {
	ledger     *memLedger
	assets     map[int64]FixedAsset
	runs       map[int64]*DepreciationRun
	nextAsset  int64
	nextRun    int64
	nextLineID int64
}

func newMockRepository(ledger *memLedger) *mockRepository {
	return &mockRepository{
		ledger:    ledger,
		assets:    make(map[int64]FixedAsset),
		runs:      make(map[int64]*DepreciationRun),
		nextAsset: 1,
		nextRun:   1,
	}
}

func (m *mockRepository) seedAsset(a FixedAsset) FixedAsset {
	a.ID = m.nextAsset
	m.nextAsset++
	if a.Method == "" {
		a.Method = MethodStraightLine
	}
	a.IsActive = true
	m.assets[a.ID] = a
	return a
}

func (m *mockRepository) ListActiveAssets(ctx context.Context) ([]FixedAsset, error) {
	var out []FixedAsset
	for _, a := range m.assets {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockRepository) GetAsset(ctx context.Context, id int64) (FixedAsset, error) {
	a, ok := m.assets[id]
	if !ok {
		return FixedAsset{}, shared.ErrNotFound
	}
	return a, nil
}

func (m *mockRepository) CreateAsset(ctx context.Context, asset FixedAsset) (FixedAsset, error) {
	return m.seedAsset(asset), nil
}

func (m *mockRepository) GetRun(ctx context.Context, id int64) (DepreciationRun, error) {
	r, ok := m.runs[id]
	if !ok {
		return DepreciationRun{}, shared.ErrNotFound
	}
	return *r, nil
}

func (m *mockRepository) ListRuns(ctx context.Context, limit int) ([]DepreciationRun, error) {
	var out []DepreciationRun
	for _, r := range m.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockRepository) HasRunForPeriod(ctx context.Context, year, month int) (bool, error) {
	for _, r := range m.runs {
		if r.FiscalYear == year && r.FiscalMonth == month && r.Status != RunStatusReversed {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) PostedAmountsByAsset(ctx context.Context) (map[int64]float64, error) {
	out := make(map[int64]float64)
	for _, r := range m.runs {
		if r.Status != RunStatusPosted {
			continue
		}
		for _, line := range r.Lines {
			out[line.AssetID] += line.Amount
		}
	}
	return out, nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	entriesBefore := len(m.ledger.entries)
	if err := fn(ctx, &mockTxRepo{mock: m}); err != nil {
		m.ledger.entries = m.ledger.entries[:entriesBefore]
		return err
	}
	return nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) InsertRun(ctx context.Context, run DepreciationRun) (DepreciationRun, error) {
	m := t.mock
	if exists, _ := m.HasRunForPeriod(ctx, run.FiscalYear, run.FiscalMonth); exists {
		return DepreciationRun{}, ErrPeriodAlreadyCalculated
	}
	run.ID = m.nextRun
	m.nextRun++
	run.Status = RunStatusCalculated
	for i := range run.Lines {
		m.nextLineID++
		run.Lines[i].ID = m.nextLineID
		run.Lines[i].RunID = run.ID
	}
	stored := run
	m.runs[run.ID] = &stored
	return run, nil
}

func (t *mockTxRepo) GetRunForUpdate(ctx context.Context, id int64) (DepreciationRun, error) {
	return t.mock.GetRun(ctx, id)
}

func (t *mockTxRepo) MarkPosted(ctx context.Context, runID, journalEntryID, postedBy int64) error {
	r, ok := t.mock.runs[runID]
	if !ok {
		return shared.ErrNotFound
	}
	if r.Status != RunStatusCalculated {
		return shared.ErrInvalidTransition
	}
	now := time.Now()
	r.Status = RunStatusPosted
	r.JournalEntryID = &journalEntryID
	r.PostedBy = &postedBy
	r.PostedAt = &now
	return nil
}

func (t *mockTxRepo) MarkReversed(ctx context.Context, runID, reversalEntryID, reversedBy int64, reason string) error {
	r, ok := t.mock.runs[runID]
	if !ok {
		return shared.ErrNotFound
	}
	if r.Status != RunStatusPosted {
		return shared.ErrInvalidTransition
	}
	now := time.Now()
	r.Status = RunStatusReversed
	r.ReversalEntryID = &reversalEntryID
	r.ReversedBy = &reversedBy
	r.ReversedAt = &now
	r.ReversalReason = &reason
	return nil
}

func (t *mockTxRepo) Journals() journals.TxRepository {
	return t.mock.ledger
}

type stubMappings struct {
	rules map[string]int64
}

func (s *stubMappings) ResolveAll(ctx context.Context, eventType string, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	for _, key := range keys {
		id, ok := s.rules[key]
		if !ok {
			return nil, fmt.Errorf("%s %s: %w", eventType, key, shared.ErrAccountNotConfigured)
		}
		out[key] = id
	}
	return out, nil
}

type stubDirectory struct{}

func (stubDirectory) ResolvePostable(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		out[id] = accounts.Account{ID: id}
	}
	return out, nil
}

func defaultRules() map[string]int64 {
	return map[string]int64{
		mappings.KeyDeprExpense: expenseAccount,
		mappings.KeyAccumDepr:   accumulatedAccount,
	}
}

func newTestService(repo *mockRepository) *Service {
	ledgerService := journals.NewService(nil, stubDirectory{}, nil)
	return NewService(repo, &stubMappings{rules: defaultRules()}, ledgerService, nil, nil)
}

func machineAsset() FixedAsset {
	return FixedAsset{
		AssetCode:        "MACH-001",
		Name:             "CNC machine",
		AcquisitionDate:  time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		InServiceDate:    time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC),
		Cost:             36000,
		SalvageValue:     0,
		UsefulLifeMonths: 36,
	}
}

func TestCreateAssetValidation(t *testing.T) {
	repo := newMockRepository(newMemLedger())
	svc := newTestService(repo)

	asset := machineAsset()
	asset.InServiceDate = time.Time{}
	created, err := svc.CreateAsset(context.Background(), asset)
	require.NoError(t, err)
	assert.Equal(t, asset.AcquisitionDate, created.InServiceDate)
	assert.Equal(t, MethodStraightLine, created.Method)
	assert.True(t, created.IsActive)

	bad := machineAsset()
	bad.Cost = 0
	_, err = svc.CreateAsset(context.Background(), bad)
	assert.Error(t, err)

	bad = machineAsset()
	bad.SalvageValue = bad.Cost
	_, err = svc.CreateAsset(context.Background(), bad)
	assert.Error(t, err)

	bad = machineAsset()
	bad.UsefulLifeMonths = 0
	_, err = svc.CreateAsset(context.Background(), bad)
	assert.Error(t, err)

	bad = machineAsset()
	bad.Method = "DOUBLE_DECLINING"
	_, err = svc.CreateAsset(context.Background(), bad)
	assert.Error(t, err)
}

func TestPreviewStraightLine(t *testing.T) {
	repo := newMockRepository(newMemLedger())
	repo.seedAsset(machineAsset())
	svc := newTestService(repo)

	preview, err := svc.Preview(context.Background(), 2026, 3)
	require.NoError(t, err)
	require.Len(t, preview.Lines, 1)
	assert.Equal(t, 1000.0, preview.Lines[0].Amount)
	assert.Equal(t, 1000.0, preview.TotalAmount)
	assert.Equal(t, expenseAccount, preview.Lines[0].ExpenseAccountID)
	assert.Equal(t, accumulatedAccount, preview.Lines[0].AccumulatedAccountID)
}

func TestPreviewSkipsNotYetInService(t *testing.T) {
	repo := newMockRepository(newMemLedger())
	future := machineAsset()
	future.InServiceDate = time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	repo.seedAsset(future)
	svc := newTestService(repo)

	preview, err := svc.Preview(context.Background(), 2026, 3)
	require.NoError(t, err)
	assert.Empty(t, preview.Lines)
}

func TestPreviewHonoursAccountOverrides(t *testing.T) {
	repo := newMockRepository(newMemLedger())
	overrideExpense := int64(699)
	overrideAccum := int64(199)
	custom := machineAsset()
	custom.ExpenseAccountID = &overrideExpense
	custom.AccumulatedAccountID = &overrideAccum
	repo.seedAsset(custom)
	// Only assets with overrides exist, so mapping defaults are not needed.
	ledgerService := journals.NewService(nil, stubDirectory{}, nil)
	svc := NewService(repo, &stubMappings{rules: map[string]int64{}}, ledgerService, nil, nil)

	preview, err := svc.Preview(context.Background(), 2026, 3)
	require.NoError(t, err)
	require.Len(t, preview.Lines, 1)
	assert.Equal(t, overrideExpense, preview.Lines[0].ExpenseAccountID)
	assert.Equal(t, overrideAccum, preview.Lines[0].AccumulatedAccountID)
}

func TestCalculateOncePerPeriod(t *testing.T) {
	repo := newMockRepository(newMemLedger())
	repo.seedAsset(machineAsset())
	svc := newTestService(repo)

	run, err := svc.Calculate(context.Background(), 2026, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCalculated, run.Status)
	assert.Equal(t, 1000.0, run.TotalAmount)

	_, err = svc.Calculate(context.Background(), 2026, 3, 1)
	assert.ErrorIs(t, err, ErrPeriodAlreadyCalculated)
}

func TestCalculateNothingToDepreciate(t *testing.T) {
	repo := newMockRepository(newMemLedger())
	svc := newTestService(repo)

	_, err := svc.Calculate(context.Background(), 2026, 3, 1)
	assert.ErrorIs(t, err, ErrNothingToDepreciate)
}

func TestCalculateInvalidPeriod(t *testing.T) {
	svc := newTestService(newMockRepository(newMemLedger()))
	_, err := svc.Calculate(context.Background(), 2026, 13, 1)
	assert.Error(t, err)
}

func TestPostRun(t *testing.T) {
	ledger := newMemLedger()
	repo := newMockRepository(ledger)
	repo.seedAsset(machineAsset())
	svc := newTestService(repo)

	run, err := svc.Calculate(context.Background(), 2026, 3, 1)
	require.NoError(t, err)

	posted, err := svc.Post(context.Background(), run.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, RunStatusPosted, posted.Status)
	require.NotNil(t, posted.JournalEntryID)

	require.Len(t, ledger.entries, 1)
	entry := ledger.entries[0]
	assert.Equal(t, journals.EntryTypeSystem, entry.EntryType)
	assert.Equal(t, "depreciation:run", entry.SourceService)
	assert.Equal(t, time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC), entry.EntryDate)
	require.Len(t, entry.Lines, 2)
	assert.Equal(t, expenseAccount, entry.Lines[0].AccountID)
	assert.Equal(t, journals.DirectionDebit, entry.Lines[0].Direction)
	assert.Equal(t, 1000.0, entry.Lines[0].Amount)
	assert.Equal(t, accumulatedAccount, entry.Lines[1].AccountID)
	assert.Equal(t, journals.DirectionCredit, entry.Lines[1].Direction)

	_, err = svc.Post(context.Background(), run.ID, 2)
	assert.ErrorIs(t, err, shared.ErrAlreadyPosted)
}

func TestPostAggregatesPerAccountPair(t *testing.T) {
	ledger := newMemLedger()
	repo := newMockRepository(ledger)
	repo.seedAsset(machineAsset())
	second := machineAsset()
	second.AssetCode = "MACH-002"
	repo.seedAsset(second)
	svc := newTestService(repo)

	run, err := svc.Calculate(context.Background(), 2026, 3, 1)
	require.NoError(t, err)
	require.Len(t, run.Lines, 2)

	_, err = svc.Post(context.Background(), run.ID, 2)
	require.NoError(t, err)

	require.Len(t, ledger.entries, 1)
	lines := ledger.entries[0].Lines
	require.Len(t, lines, 2)
	assert.Equal(t, 2000.0, lines[0].Amount)
	assert.Equal(t, 2000.0, lines[1].Amount)
}

func TestReverseRun(t *testing.T) {
	ledger := newMemLedger()
	repo := newMockRepository(ledger)
	repo.seedAsset(machineAsset())
	svc := newTestService(repo)

	run, _ := svc.Calculate(context.Background(), 2026, 3, 1)
	posted, err := svc.Post(context.Background(), run.ID, 2)
	require.NoError(t, err)

	reversed, err := svc.Reverse(context.Background(), run.ID, "posted against wrong period", 2)
	require.NoError(t, err)
	assert.Equal(t, RunStatusReversed, reversed.Status)
	require.NotNil(t, reversed.ReversalEntryID)

	require.Len(t, ledger.entries, 2)
	reversal := ledger.entries[1]
	assert.Equal(t, journals.EntryTypeAdjustment, reversal.EntryType)
	assert.Equal(t, "depreciation:reversal", reversal.SourceService)
	require.NotNil(t, reversal.ReversalOf)
	assert.Equal(t, *posted.JournalEntryID, *reversal.ReversalOf)
	require.Len(t, reversal.Lines, 2)
	assert.Equal(t, journals.DirectionCredit, reversal.Lines[0].Direction)
	assert.Equal(t, expenseAccount, reversal.Lines[0].AccountID)
	assert.Equal(t, journals.DirectionDebit, reversal.Lines[1].Direction)

	// A reversed period may be calculated again.
	again, err := svc.Calculate(context.Background(), 2026, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCalculated, again.Status)
}

func TestReverseRequiresReason(t *testing.T) {
	repo := newMockRepository(newMemLedger())
	repo.seedAsset(machineAsset())
	svc := newTestService(repo)
	run, _ := svc.Calculate(context.Background(), 2026, 3, 1)
	_, err := svc.Post(context.Background(), run.ID, 2)
	require.NoError(t, err)

	_, err = svc.Reverse(context.Background(), run.ID, "  ", 2)
	assert.Error(t, err)
}

func TestReverseCalculatedRunFails(t *testing.T) {
	repo := newMockRepository(newMemLedger())
	repo.seedAsset(machineAsset())
	svc := newTestService(repo)
	run, _ := svc.Calculate(context.Background(), 2026, 3, 1)

	_, err := svc.Reverse(context.Background(), run.ID, "nothing posted yet", 2)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestScheduleClampsToDepreciableBase(t *testing.T) {
	ledger := newMemLedger()
	repo := newMockRepository(ledger)
	// Two months of life; monthly charge 500, cost 1000.
	short := FixedAsset{
		AssetCode:        "LAPTOP-1",
		Name:             "Laptop",
		AcquisitionDate:  time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		InServiceDate:    time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		Cost:             1000,
		UsefulLifeMonths: 2,
	}
	repo.seedAsset(short)
	svc := newTestService(repo)

	for month := 1; month <= 2; month++ {
		run, err := svc.Calculate(context.Background(), 2026, month, 1)
		require.NoError(t, err)
		require.Len(t, run.Lines, 1)
		assert.Equal(t, 500.0, run.Lines[0].Amount)
		_, err = svc.Post(context.Background(), run.ID, 1)
		require.NoError(t, err)
	}

	// Fully depreciated: a third run has nothing left to charge.
	_, err := svc.Calculate(context.Background(), 2026, 3, 1)
	assert.ErrorIs(t, err, ErrNothingToDepreciate)
}

func TestScheduleClampsPartialRemainder(t *testing.T) {
	repo := newMockRepository(newMemLedger())
	asset := repo.seedAsset(FixedAsset{
		AssetCode:        "TRUCK-1",
		Name:             "Truck",
		AcquisitionDate:  time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		InServiceDate:    time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		Cost:             1000,
		UsefulLifeMonths: 3,
	})
	// Pretend 700 was already recognised by a posted run.
	repo.runs[99] = &DepreciationRun{
		ID:          99,
		FiscalYear:  2025,
		FiscalMonth: 12,
		Status:      RunStatusPosted,
		Lines:       []RunLine{{AssetID: asset.ID, Amount: 700, ExpenseAccountID: expenseAccount, AccumulatedAccountID: accumulatedAccount}},
	}
	svc := newTestService(repo)

	preview, err := svc.Preview(context.Background(), 2026, 1)
	require.NoError(t, err)
	require.Len(t, preview.Lines, 1)
	// Monthly charge would be 333.33 but only 300 remains.
	assert.Equal(t, 300.0, preview.Lines[0].Amount)
}
