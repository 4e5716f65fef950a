package periods

import "time"

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// FiscalPeriod represents one (year, month) accounting window.
type FiscalPeriod struct {
	ID           int64
	FiscalYear   int
	FiscalMonth  int
	Status       PeriodStatus
	ClosedBy     *int64
	ClosedAt     *time.Time
	ReopenedBy   *int64
	ReopenedAt   *time.Time
	ReopenReason *string
	LockedBy     *int64
	LockedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key identifies a fiscal period by year and month.
type Key struct {
	Year  int
	Month int
}

// KeyForDate derives the fiscal period key from a business date.
func KeyForDate(date time.Time) Key {
	return Key{Year: date.Year(), Month: int(date.Month())}
}

// Valid reports whether the key denotes a plausible calendar period.
func (k Key) Valid() bool {
	return k.Year >= 1900 && k.Year <= 9999 && k.Month >= 1 && k.Month <= 12
}
