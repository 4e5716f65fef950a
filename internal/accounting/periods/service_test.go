package periods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/finledger/internal/accounting/shared"
	internalShared "github.com/finledger/finledger/internal/shared"
)

type mockRepository struct {
	periods map[Key]*FiscalPeriod
	nextID  int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{periods: make(map[Key]*FiscalPeriod), nextID: 1}
}

func (m *mockRepository) seed(key Key, status PeriodStatus) *FiscalPeriod {
	p := &FiscalPeriod{ID: m.nextID, FiscalYear: key.Year, FiscalMonth: key.Month, Status: status}
	m.nextID++
	m.periods[key] = p
	return p
}

func (m *mockRepository) Get(ctx context.Context, key Key) (FiscalPeriod, error) {
	p, ok := m.periods[key]
	if !ok {
		return FiscalPeriod{}, shared.ErrNotFound
	}
	return *p, nil
}

func (m *mockRepository) List(ctx context.Context, fiscalYear int) ([]FiscalPeriod, error) {
	var out []FiscalPeriod
	for _, p := range m.periods {
		if p.FiscalYear == fiscalYear {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockRepository) EnsureOpen(ctx context.Context, key Key) (FiscalPeriod, error) {
	if p, ok := m.periods[key]; ok {
		return *p, nil
	}
	return *m.seed(key, PeriodStatusOpen), nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTxRepository{mock: m})
}

type mockTxRepository struct {
	mock *mockRepository
}

func (t *mockTxRepository) GetForUpdate(ctx context.Context, key Key) (FiscalPeriod, error) {
	return t.mock.Get(ctx, key)
}

func (t *mockTxRepository) UpdateStatus(ctx context.Context, in StatusUpdate) (FiscalPeriod, error) {
	for _, p := range t.mock.periods {
		if p.ID != in.PeriodID {
			continue
		}
		p.Status = in.Status
		switch in.Status {
		case PeriodStatusClosed:
			p.ClosedBy = &in.ActorID
		case PeriodStatusOpen:
			p.ReopenedBy = &in.ActorID
			p.ReopenReason = in.Reason
		case PeriodStatusLocked:
			p.LockedBy = &in.ActorID
		}
		return *p, nil
	}
	return FiscalPeriod{}, shared.ErrNotFound
}

type recordingAudit struct {
	logs []internalShared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log internalShared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestIsOpenCreatesPeriodOnFirstUse(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	open, err := svc.IsOpen(context.Background(), Key{Year: 2026, Month: 3})
	require.NoError(t, err)
	assert.True(t, open)
	assert.Len(t, repo.periods, 1)

	// Second call hits the existing row.
	open, err = svc.IsOpen(context.Background(), Key{Year: 2026, Month: 3})
	require.NoError(t, err)
	assert.True(t, open)
	assert.Len(t, repo.periods, 1)
}

func TestIsOpenRejectsInvalidKey(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.IsOpen(context.Background(), Key{Year: 2026, Month: 13})
	assert.Error(t, err)
}

func TestCloseOpenPeriod(t *testing.T) {
	repo := newMockRepository()
	repo.seed(Key{Year: 2026, Month: 1}, PeriodStatusOpen)
	audit := &recordingAudit{}
	svc := NewService(repo, audit)

	p, err := svc.Close(context.Background(), Key{Year: 2026, Month: 1}, 7)
	require.NoError(t, err)
	assert.Equal(t, PeriodStatusClosed, p.Status)
	require.NotNil(t, p.ClosedBy)
	assert.Equal(t, int64(7), *p.ClosedBy)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "period.closed", audit.logs[0].Action)
}

func TestCloseClosedPeriodFails(t *testing.T) {
	repo := newMockRepository()
	repo.seed(Key{Year: 2026, Month: 1}, PeriodStatusClosed)
	svc := NewService(repo, nil)

	_, err := svc.Close(context.Background(), Key{Year: 2026, Month: 1}, 7)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestReopenRequiresReason(t *testing.T) {
	repo := newMockRepository()
	repo.seed(Key{Year: 2026, Month: 1}, PeriodStatusClosed)
	svc := NewService(repo, nil)

	_, err := svc.Reopen(context.Background(), Key{Year: 2026, Month: 1}, "short", 7)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	p, err := svc.Reopen(context.Background(), Key{Year: 2026, Month: 1}, "late vendor invoices arrived", 7)
	require.NoError(t, err)
	assert.Equal(t, PeriodStatusOpen, p.Status)
	require.NotNil(t, p.ReopenReason)
	assert.Equal(t, "late vendor invoices arrived", *p.ReopenReason)
}

func TestReopenOpenPeriodFails(t *testing.T) {
	repo := newMockRepository()
	repo.seed(Key{Year: 2026, Month: 1}, PeriodStatusOpen)
	svc := NewService(repo, nil)

	_, err := svc.Reopen(context.Background(), Key{Year: 2026, Month: 1}, "a sufficiently long reason", 7)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestLockIsTerminal(t *testing.T) {
	repo := newMockRepository()
	repo.seed(Key{Year: 2025, Month: 12}, PeriodStatusClosed)
	svc := NewService(repo, nil)

	p, err := svc.Lock(context.Background(), Key{Year: 2025, Month: 12}, 9)
	require.NoError(t, err)
	assert.Equal(t, PeriodStatusLocked, p.Status)

	_, err = svc.Reopen(context.Background(), Key{Year: 2025, Month: 12}, "attempting to reopen a locked one", 9)
	assert.ErrorIs(t, err, shared.ErrPeriodLocked)

	_, err = svc.Lock(context.Background(), Key{Year: 2025, Month: 12}, 9)
	assert.ErrorIs(t, err, shared.ErrPeriodLocked)
}

func TestLockOpenPeriod(t *testing.T) {
	repo := newMockRepository()
	repo.seed(Key{Year: 2026, Month: 2}, PeriodStatusOpen)
	svc := NewService(repo, nil)

	p, err := svc.Lock(context.Background(), Key{Year: 2026, Month: 2}, 9)
	require.NoError(t, err)
	assert.Equal(t, PeriodStatusLocked, p.Status)
}

func TestKeyForDate(t *testing.T) {
	key := KeyForDate(time.Date(2026, time.July, 31, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, Key{Year: 2026, Month: 7}, key)
}
