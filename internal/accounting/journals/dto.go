package journals

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/finledger/finledger/internal/accounting/shared"
)

// LineInput describes a journal line for a create request.
type LineInput struct {
	AccountID     int64
	Direction     Direction
	Amount        float64
	CustomerID    *int64
	SalesPersonID *int64
	WarehouseID   *int64
	SalesChannel  *string
}

// CreateInput groups fields required to create a journal entry.
type CreateInput struct {
	EntryDate         time.Time
	EntryType         EntryType
	SourceService     string
	SourceReferenceID string
	Description       string
	CreatedBy         int64
	ReversalOf        *int64
	Lines             []LineInput
}

// Validate ensures the input is well formed and balanced within tolerance.
func (in CreateInput) Validate() error {
	if in.EntryDate.IsZero() {
		return errors.New("journals: entry date required")
	}
	switch in.EntryType {
	case EntryTypeManual, EntryTypeSystem, EntryTypeAdjustment, EntryTypeClosing:
	case "":
		return errors.New("journals: entry type required")
	default:
		return fmt.Errorf("journals: unknown entry type %q", in.EntryType)
	}
	if strings.TrimSpace(in.SourceService) == "" {
		return errors.New("journals: source service required")
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("journals: line %d missing account", idx)
		}
		if line.Direction != DirectionDebit && line.Direction != DirectionCredit {
			return fmt.Errorf("journals: line %d invalid direction %q", idx, line.Direction)
		}
		if line.Amount <= 0 {
			return fmt.Errorf("journals: line %d amount must be positive", idx)
		}
	}
	debit, credit := sumInputs(in.Lines)
	if math.Abs(debit-credit) > shared.Epsilon {
		return shared.ErrUnbalanced
	}
	return nil
}

// AccountIDs returns every account referenced by the input lines.
func (in CreateInput) AccountIDs() []int64 {
	ids := make([]int64, 0, len(in.Lines))
	for _, line := range in.Lines {
		ids = append(ids, line.AccountID)
	}
	return ids
}

func sumInputs(lines []LineInput) (debit, credit float64) {
	for _, line := range lines {
		if line.Direction == DirectionDebit {
			debit += line.Amount
		} else {
			credit += line.Amount
		}
	}
	return debit, credit
}

func sumLines(lines []JournalLine) (debit, credit float64) {
	for _, line := range lines {
		if line.Direction == DirectionDebit {
			debit += line.Amount
		} else {
			credit += line.Amount
		}
	}
	return debit, credit
}
