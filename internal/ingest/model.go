package ingest

import (
	"errors"
	"strings"
	"time"
)

// Event types understood by the posting rules.
const (
	EventOrderCompleted = "ORDER.COMPLETED"
	EventOrderRefunded  = "ORDER.REFUNDED"
)

// ExternalEvent is one inbound business event. Delivery upstream is
// at-least-once; EventID is the idempotency key that makes the ledger effect
// at-most-once.
type ExternalEvent struct {
	EventID      string    `json:"eventId" validate:"required"`
	EventType    string    `json:"eventType" validate:"required"`
	BusinessDate time.Time `json:"businessDate" validate:"required"`
	ActorID      int64     `json:"actorId"`

	GrandTotal    float64 `json:"grandTotal"`
	Subtotal      float64 `json:"subtotal"`
	TotalTax      float64 `json:"totalTax"`
	TotalDiscount float64 `json:"totalDiscount"`

	CustomerID    *int64  `json:"customerId,omitempty"`
	SalesPersonID *int64  `json:"salesPersonId,omitempty"`
	WarehouseID   *int64  `json:"warehouseId,omitempty"`
	SalesChannel  *string `json:"salesChannel,omitempty"`
}

// Validate checks the envelope before any mutation.
func (e ExternalEvent) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return errors.New("ingest: eventId required")
	}
	if strings.TrimSpace(e.EventType) == "" {
		return errors.New("ingest: eventType required")
	}
	if e.BusinessDate.IsZero() {
		return errors.New("ingest: businessDate required")
	}
	if e.GrandTotal <= 0 {
		return errors.New("ingest: grandTotal must be positive")
	}
	if e.Subtotal <= 0 {
		return errors.New("ingest: subtotal must be positive")
	}
	if e.TotalTax < 0 || e.TotalDiscount < 0 {
		return errors.New("ingest: tax and discount cannot be negative")
	}
	return nil
}

// Outcome captures how an ingestion attempt ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
)

// ProcessedEvent is the write-once-per-eventId idempotency record. Failed
// attempts are retained for operational follow-up but never block a retry;
// only a prior SUCCESS short-circuits reprocessing.
type ProcessedEvent struct {
	ID             int64
	EventID        string
	EventType      string
	Outcome        Outcome
	Error          *string
	JournalEntryID *int64
	Attempts       int
	ProcessedAt    time.Time
}

// Result reports what Handle did for one event.
type Result struct {
	Duplicate      bool
	JournalEntryID int64
	EntryNumber    int64
}
