package depreciation

import (
	"errors"
	"time"
)

var (
	ErrPeriodAlreadyCalculated = errors.New("depreciation: a run already exists for this period")
	ErrNothingToDepreciate     = errors.New("depreciation: no eligible assets for this period")
)

// Method enumerates supported depreciation methods.
type Method string

const (
	MethodStraightLine Method = "STRAIGHT_LINE"
)

// FixedAsset is one depreciable asset. Account overrides, when set, replace
// the event-mapping defaults for that asset's schedule lines.
type FixedAsset struct {
	ID                   int64
	AssetCode            string
	Name                 string
	AcquisitionDate      time.Time
	InServiceDate        time.Time
	Cost                 float64
	SalvageValue         float64
	UsefulLifeMonths     int
	Method               Method
	ExpenseAccountID     *int64
	AccumulatedAccountID *int64
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// DepreciableBase is the total amount the asset can ever depreciate.
func (a FixedAsset) DepreciableBase() float64 {
	return a.Cost - a.SalvageValue
}

// MonthlyAmount is the straight-line charge for one period.
func (a FixedAsset) MonthlyAmount() float64 {
	if a.UsefulLifeMonths <= 0 {
		return 0
	}
	return a.DepreciableBase() / float64(a.UsefulLifeMonths)
}

// RunStatus enumerates the depreciation run lifecycle.
type RunStatus string

const (
	RunStatusCalculated RunStatus = "CALCULATED"
	RunStatusPosted     RunStatus = "POSTED"
	RunStatusReversed   RunStatus = "REVERSED"
)

// DepreciationRun aggregates one period's schedule lines. Calculation holds
// no ledger effect; posting delegates the mutation to the journal engine and
// records the resulting entry id here.
type DepreciationRun struct {
	ID              int64
	FiscalYear      int
	FiscalMonth     int
	Status          RunStatus
	TotalAmount     float64
	JournalEntryID  *int64
	ReversalEntryID *int64
	CreatedBy       int64
	PostedBy        *int64
	PostedAt        *time.Time
	ReversedBy      *int64
	ReversedAt      *time.Time
	ReversalReason  *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Lines           []RunLine
}

// RunLine is one asset's charge within a run.
type RunLine struct {
	ID                   int64
	RunID                int64
	AssetID              int64
	AssetCode            string
	Amount               float64
	ExpenseAccountID     int64
	AccumulatedAccountID int64
}

// Preview is the dry-run output of a period calculation.
type Preview struct {
	FiscalYear  int       `json:"fiscalYear"`
	FiscalMonth int       `json:"fiscalMonth"`
	TotalAmount float64   `json:"totalAmount"`
	Lines       []RunLine `json:"lines"`
}
