package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/finledger/finledger/internal/accounting/shared"
	"github.com/finledger/finledger/internal/ingest"
	jobmetrics "github.com/finledger/finledger/internal/jobs"
)

// IngestJob drains queued external events into the ledger.
type IngestJob struct {
	service *ingest.Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewIngestJob constructs the queued-event handler.
func NewIngestJob(service *ingest.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *IngestJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestJob{service: service, logger: logger, metrics: metrics}
}

// Handle processes a single TaskLedgerEventIngest task.
func (j *IngestJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("ledger_event_ingest")
	var payload LedgerEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger.Error("decode ledger event payload", slog.Any("error", err))
		return tracker.End(asynq.SkipRetry)
	}

	result, err := j.service.Handle(ctx, payload.Event)
	if err != nil {
		// Business rejections are final; retrying would replay the same
		// outcome. Infrastructure errors bubble up so Asynq retries.
		if errors.Is(err, shared.ErrUnbalanced) ||
			errors.Is(err, shared.ErrAccountNotConfigured) ||
			errors.Is(err, shared.ErrPeriodClosed) ||
			errors.Is(err, shared.ErrPeriodLocked) {
			j.logger.Warn("ledger event rejected",
				slog.String("event_id", payload.Event.EventID),
				slog.Any("error", err))
			return tracker.End(asynq.SkipRetry)
		}
		return tracker.End(err)
	}

	if result.Duplicate {
		j.logger.Info("ledger event already processed",
			slog.String("event_id", payload.Event.EventID))
		return tracker.End(nil)
	}
	j.logger.Info("ledger event ingested",
		slog.String("event_id", payload.Event.EventID),
		slog.Int64("journal_entry_id", result.JournalEntryID))
	return tracker.End(nil)
}
