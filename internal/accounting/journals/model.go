package journals

import (
	"time"
)

// EntryStatus enumerates journal lifecycle values.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "DRAFT"
	EntryStatusPosted EntryStatus = "POSTED"
	EntryStatusVoided EntryStatus = "VOIDED"
)

// EntryType tags how an entry was produced.
type EntryType string

const (
	EntryTypeManual     EntryType = "MANUAL"
	EntryTypeSystem     EntryType = "SYSTEM"
	EntryTypeAdjustment EntryType = "ADJUSTMENT"
	EntryTypeClosing    EntryType = "CLOSING"
)

// Direction marks which side of the ledger a line hits.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// JournalEntry captures posting metadata. A posted entry's lines are
// immutable; correction happens by voiding or posting a reversing entry.
type JournalEntry struct {
	ID                int64
	EntryNumber       int64
	EntryDate         time.Time
	FiscalYear        int
	FiscalMonth       int
	Status            EntryStatus
	EntryType         EntryType
	SourceService     string
	SourceReferenceID string
	Description       string
	CreatedBy         int64
	PostedBy          *int64
	PostedAt          *time.Time
	VoidedBy          *int64
	VoidedAt          *time.Time
	VoidReason        *string
	ReversalOf        *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Lines             []JournalLine
}

// JournalLine stores one debit or credit amount against an account. The
// dimension tags ride along for reporting and never affect balancing.
type JournalLine struct {
	ID             int64
	JournalEntryID int64
	AccountID      int64
	Direction      Direction
	Amount         float64
	CustomerID     *int64
	SalesPersonID  *int64
	WarehouseID    *int64
	SalesChannel   *string
	CreatedAt      time.Time
}

// PostedNotification is the outbound record persisted for downstream read
// models whenever an entry reaches POSTED.
type PostedNotification struct {
	ID             int64
	JournalEntryID int64
	EntryNumber    int64
	EntryDate      time.Time
	Description    string
	PostedBy       int64
	PostedAt       time.Time
	Lines          []NotificationLine
}

// NotificationLine mirrors a journal line in the notification payload.
type NotificationLine struct {
	AccountID int64     `json:"account_id"`
	Direction Direction `json:"direction"`
	Amount    float64   `json:"amount"`
}
