package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/finledger/finledger/internal/depreciation"
	jobmetrics "github.com/finledger/finledger/internal/jobs"
)

// DepreciationJob runs the monthly depreciation calculation on a schedule.
type DepreciationJob struct {
	service *depreciation.Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewDepreciationJob constructs the scheduled depreciation handler.
func NewDepreciationJob(service *depreciation.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *DepreciationJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DepreciationJob{service: service, logger: logger, metrics: metrics, now: time.Now}
}

// Handle processes a single TaskDepreciationCalculate task.
func (j *DepreciationJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("depreciation_calculate")
	var payload DepreciationCalculatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger.Error("decode depreciation payload", slog.Any("error", err))
		return tracker.End(asynq.SkipRetry)
	}

	year, month := payload.FiscalYear, payload.FiscalMonth
	if year == 0 || month == 0 {
		year, month = PreviousPeriod(j.now())
	}

	run, err := j.service.Calculate(ctx, year, month, payload.ActorID)
	if err != nil {
		switch {
		case errors.Is(err, depreciation.ErrPeriodAlreadyCalculated):
			j.logger.Info("depreciation already calculated",
				slog.Int("fiscal_year", year), slog.Int("fiscal_month", month))
			return tracker.End(nil)
		case errors.Is(err, depreciation.ErrNothingToDepreciate):
			j.logger.Info("no depreciable assets",
				slog.Int("fiscal_year", year), slog.Int("fiscal_month", month))
			return tracker.End(nil)
		default:
			return tracker.End(err)
		}
	}

	j.logger.Info("depreciation run calculated",
		slog.Int64("run_id", run.ID),
		slog.Int("fiscal_year", year),
		slog.Int("fiscal_month", month),
		slog.Float64("total_amount", run.TotalAmount))
	return tracker.End(nil)
}
