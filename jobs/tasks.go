package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/finledger/finledger/internal/ingest"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerEventIngest is the task type for asynchronous event ingestion.
	TaskLedgerEventIngest = "ledger:event_ingest"
	// TaskDepreciationCalculate is the task type for the monthly depreciation run.
	TaskDepreciationCalculate = "depreciation:calculate"
)

// LedgerEventPayload wraps an external event for queued processing.
type LedgerEventPayload struct {
	Event ingest.ExternalEvent `json:"event"`
}

// NewLedgerEventTask constructs an Asynq task carrying an external event.
func NewLedgerEventTask(event ingest.ExternalEvent) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerEventPayload{Event: event})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerEventIngest, data), nil
}

// DepreciationCalculatePayload selects the period to depreciate. A zero
// year/month means "the month before now", which is what the cron schedule
// wants: the run fires at the start of a month and charges the month that
// just ended.
type DepreciationCalculatePayload struct {
	FiscalYear  int   `json:"fiscalYear"`
	FiscalMonth int   `json:"fiscalMonth"`
	ActorID     int64 `json:"actorId"`
}

// NewDepreciationCalculateTask constructs a depreciation run task.
func NewDepreciationCalculateTask(payload DepreciationCalculatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDepreciationCalculate, data), nil
}

// PreviousPeriod resolves the fiscal period immediately before the given time.
func PreviousPeriod(now time.Time) (year, month int) {
	prev := now.AddDate(0, -1, -now.Day()+1)
	return prev.Year(), int(prev.Month())
}
