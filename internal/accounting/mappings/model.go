package mappings

import "time"

// Well-known mapping keys used by event-driven posting rules.
const (
	KeyCash         = "CASH"
	KeyRevenue      = "REVENUE"
	KeyTaxPayable   = "TAX_PAYABLE"
	KeyDiscount     = "DISCOUNT"
	KeyRefund       = "REFUND_CLEARING"
	KeyCOGS         = "COGS"
	KeyInventory    = "INVENTORY"
	KeyDeprExpense  = "DEPRECIATION_EXPENSE"
	KeyAccumDepr    = "ACCUMULATED_DEPRECIATION"
)

// AccountMapping links an event type and semantic key to a ledger account.
type AccountMapping struct {
	EventType string
	Key       string
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
