package ingest

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

// memLedger backs journals.TxRepository with maps so the ingest service can
// drive the real journal engine in-process.
type memLedger struct {
	entries       []journals.JournalEntry
	notifications []journals.PostedNotification
	periodStatus  map[periods.Key]periods.PeriodStatus
	nextEntryID   int64
	nextNumber    int64
}

func newMemLedger() *memLedger {
	return &memLedger{
		periodStatus: make(map[periods.Key]periods.PeriodStatus),
		nextEntryID:  1,
		nextNumber:   5000,
	}
}

func (l *memLedger) InsertEntry(ctx context.Context, in journals.CreateInput, status journals.EntryStatus, postedBy *int64) (journals.JournalEntry, error) {
	entry := journals.JournalEntry{
		ID:                l.nextEntryID,
		EntryNumber:       l.nextNumber,
		EntryDate:         in.EntryDate,
		FiscalYear:        in.EntryDate.Year(),
		FiscalMonth:       int(in.EntryDate.Month()),
		Status:            status,
		EntryType:         in.EntryType,
		SourceService:     in.SourceService,
		SourceReferenceID: in.SourceReferenceID,
		Description:       in.Description,
		CreatedBy:         in.CreatedBy,
		PostedBy:          postedBy,
	}
	l.nextEntryID++
	l.nextNumber++
	l.entries = append(l.entries, entry)
	return entry, nil
}

func (l *memLedger) InsertLines(ctx context.Context, entryID int64, lines []journals.LineInput) ([]journals.JournalLine, error) {
	out := make([]journals.JournalLine, 0, len(lines))
	for idx, in := range lines {
		out = append(out, journals.JournalLine{
			ID:             int64(idx + 1),
			JournalEntryID: entryID,
			AccountID:      in.AccountID,
			Direction:      in.Direction,
			Amount:         in.Amount,
		})
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
	l.notifications = append(l.notifications, n)
	return nil
}

func (l *memLedger) EnsurePeriodForUpdate(ctx context.Context, key periods.Key) (periods.FiscalPeriod, error) {
	status, ok := l.periodStatus[key]
	if !ok {
		status = periods.PeriodStatusOpen
	}
	return periods.FiscalPeriod{FiscalYear: key.Year, FiscalMonth: key.Month, Status: status}, nil
}

type mockRepository struct {
	ledger    *memLedger
	processed map[string]*ProcessedEvent
	nextID    int64
}

func newMockRepository(ledger *memLedger) *mockRepository {
	return &mockRepository{ledger: ledger, processed: make(map[string]*ProcessedEvent), nextID: 1}
}

func (m *mockRepository) GetProcessedSuccess(ctx context.Context, eventID string) (ProcessedEvent, bool, error) {
	p, ok := m.processed[eventID]
	if !ok || p.Outcome != OutcomeSuccess {
		return ProcessedEvent{}, false, nil
	}
	return *p, true, nil
}

func (m *mockRepository) ListProcessed(ctx context.Context, limit int) ([]ProcessedEvent, error) {
	var out []ProcessedEvent
	for _, p := range m.processed {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockRepository) RecordFailure(ctx context.Context, eventID, eventType, errMsg string) error {
	if p, ok := m.processed[eventID]; ok {
		if p.Outcome == OutcomeSuccess {
			return nil
		}
		p.Error = &errMsg
		p.Attempts++
		return nil
	}
	m.processed[eventID] = &ProcessedEvent{ID: m.nextID, EventID: eventID, EventType: eventType, Outcome: OutcomeFailed, Error: &errMsg, Attempts: 1}
	m.nextID++
	return nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	// Snapshot so an error restores the pre-transaction ledger state.
	entriesBefore := len(m.ledger.entries)
	notificationsBefore := len(m.ledger.notifications)
	tx := &mockTxRepo{mock: m}
	if err := fn(ctx, tx); err != nil {
		m.ledger.entries = m.ledger.entries[:entriesBefore]
		m.ledger.notifications = m.ledger.notifications[:notificationsBefore]
		return err
	}
	if tx.success != nil {
		m.processed[tx.success.EventID] = tx.success
	}
	return nil
}

type mockTxRepo struct {
	mock    *mockRepository
	success *ProcessedEvent
}

func (t *mockTxRepo) MarkSuccess(ctx context.Context, eventID, eventType string, journalEntryID int64) error {
	if p, ok := t.mock.processed[eventID]; ok && p.Outcome == OutcomeSuccess {
		return shared.ErrDuplicateEvent
	}
	t.success = &ProcessedEvent{ID: t.mock.nextID, EventID: eventID, EventType: eventType, Outcome: OutcomeSuccess, JournalEntryID: &journalEntryID, Attempts: 1}
	t.mock.nextID++
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
		id, ok := s.rules[eventType+"/"+key]
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

const (
	cashAccount    = int64(101)
	revenueAccount = int64(401)
	taxAccount     = int64(201)
)

func fullRules() map[string]int64 {
	return map[string]int64{
		EventOrderCompleted + "/" + mappings.KeyCash:       cashAccount,
		EventOrderCompleted + "/" + mappings.KeyRevenue:    revenueAccount,
		EventOrderCompleted + "/" + mappings.KeyTaxPayable: taxAccount,
		EventOrderRefunded + "/" + mappings.KeyCash:        cashAccount,
		EventOrderRefunded + "/" + mappings.KeyRevenue:     revenueAccount,
		EventOrderRefunded + "/" + mappings.KeyTaxPayable:  taxAccount,
	}
}

func newTestService(ledger *memLedger, repo *mockRepository, rules map[string]int64) *Service {
	journalService := journals.NewService(nil, stubDirectory{}, nil)
	return NewService(repo, &stubMappings{rules: rules}, journalService, nil)
}

func orderCompleted(eventID string) ExternalEvent {
	return ExternalEvent{
		EventID:      eventID,
		EventType:    EventOrderCompleted,
		BusinessDate: time.Date(2026, time.April, 10, 0, 0, 0, 0, time.UTC),
		ActorID:      3,
		GrandTotal:   1000,
		Subtotal:     900,
		TotalTax:     100,
	}
}

func TestHandlePostsBalancedEntry(t *testing.T) {
	ledger := newMemLedger()
	repo := newMockRepository(ledger)
	svc := newTestService(ledger, repo, fullRules())

	result, err := svc.Handle(context.Background(), orderCompleted("evt-1"))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	require.Len(t, ledger.entries, 1)

	entry := ledger.entries[0]
	assert.Equal(t, journals.EntryStatusPosted, entry.Status)
	assert.Equal(t, journals.EntryTypeSystem, entry.EntryType)
	require.Len(t, entry.Lines, 3)
	assert.Equal(t, cashAccount, entry.Lines[0].AccountID)
	assert.Equal(t, journals.DirectionDebit, entry.Lines[0].Direction)
	assert.Equal(t, 1000.0, entry.Lines[0].Amount)
	assert.Equal(t, revenueAccount, entry.Lines[1].AccountID)
	assert.Equal(t, journals.DirectionCredit, entry.Lines[1].Direction)
	assert.Equal(t, 900.0, entry.Lines[1].Amount)
	assert.Equal(t, taxAccount, entry.Lines[2].AccountID)
	assert.Equal(t, journals.DirectionCredit, entry.Lines[2].Direction)
	assert.Equal(t, 100.0, entry.Lines[2].Amount)
}

func TestHandleDuplicateEventPostsOnce(t *testing.T) {
	ledger := newMemLedger()
	repo := newMockRepository(ledger)
	svc := newTestService(ledger, repo, fullRules())

	first, err := svc.Handle(context.Background(), orderCompleted("evt-1"))
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := svc.Handle(context.Background(), orderCompleted("evt-1"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.JournalEntryID, second.JournalEntryID)
	assert.Len(t, ledger.entries, 1)
}

func TestHandleMissingMappingFailsBeforePosting(t *testing.T) {
	ledger := newMemLedger()
	repo := newMockRepository(ledger)
	rules := fullRules()
	delete(rules, EventOrderCompleted+"/"+mappings.KeyTaxPayable)
	svc := newTestService(ledger, repo, rules)

	_, err := svc.Handle(context.Background(), orderCompleted("evt-2"))
	require.ErrorIs(t, err, shared.ErrAccountNotConfigured)
	assert.Empty(t, ledger.entries)

	record, ok := repo.processed["evt-2"]
	require.True(t, ok)
	assert.Equal(t, OutcomeFailed, record.Outcome)
}

func TestHandleFailedEventRetries(t *testing.T) {
	ledger := newMemLedger()
	repo := newMockRepository(ledger)
	rules := fullRules()
	delete(rules, EventOrderCompleted+"/"+mappings.KeyTaxPayable)
	svc := newTestService(ledger, repo, rules)

	_, err := svc.Handle(context.Background(), orderCompleted("evt-3"))
	require.Error(t, err)

	// Fix the configuration, then retry the same event id.
	rules[EventOrderCompleted+"/"+mappings.KeyTaxPayable] = taxAccount
	result, err := svc.Handle(context.Background(), orderCompleted("evt-3"))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Len(t, ledger.entries, 1)
}

func TestHandleClosedPeriodRejectsAndRecordsFailure(t *testing.T) {
	ledger := newMemLedger()
	ledger.periodStatus[periods.Key{Year: 2026, Month: 4}] = periods.PeriodStatusClosed
	repo := newMockRepository(ledger)
	svc := newTestService(ledger, repo, fullRules())

	_, err := svc.Handle(context.Background(), orderCompleted("evt-4"))
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	assert.Empty(t, ledger.entries)

	record, ok := repo.processed["evt-4"]
	require.True(t, ok)
	assert.Equal(t, OutcomeFailed, record.Outcome)
}

func TestHandleRefundMirrorsSale(t *testing.T) {
	ledger := newMemLedger()
	repo := newMockRepository(ledger)
	svc := newTestService(ledger, repo, fullRules())

	event := orderCompleted("evt-5")
	event.EventType = EventOrderRefunded

	_, err := svc.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, ledger.entries, 1)
	lines := ledger.entries[0].Lines
	require.Len(t, lines, 3)
	assert.Equal(t, journals.DirectionDebit, lines[0].Direction)
	assert.Equal(t, revenueAccount, lines[0].AccountID)
	assert.Equal(t, journals.DirectionCredit, lines[2].Direction)
	assert.Equal(t, cashAccount, lines[2].AccountID)
}

func TestHandleNormalizesEventType(t *testing.T) {
	ledger := newMemLedger()
	repo := newMockRepository(ledger)
	svc := newTestService(ledger, repo, fullRules())

	event := orderCompleted("evt-6")
	event.EventType = " order.completed "

	_, err := svc.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.Len(t, ledger.entries, 1)
}

func TestHandleRejectsInvalidEnvelope(t *testing.T) {
	svc := newTestService(newMemLedger(), newMockRepository(newMemLedger()), fullRules())

	event := orderCompleted("")
	_, err := svc.Handle(context.Background(), event)
	assert.Error(t, err)

	event = orderCompleted("evt-7")
	event.GrandTotal = 0
	_, err = svc.Handle(context.Background(), event)
	assert.Error(t, err)
}

func TestHandleUnsupportedEventType(t *testing.T) {
	ledger := newMemLedger()
	repo := newMockRepository(ledger)
	svc := newTestService(ledger, repo, fullRules())

	event := orderCompleted("evt-8")
	event.EventType = "ORDER.SHIPPED"
	_, err := svc.Handle(context.Background(), event)
	assert.Error(t, err)
	assert.Empty(t, ledger.entries)
}
