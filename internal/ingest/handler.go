package ingest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/finledger/finledger/internal/platform/httpx"
)

// Enqueuer hands an event to the background queue for later processing.
type Enqueuer interface {
	EnqueueLedgerEvent(ctx context.Context, event ExternalEvent) (*asynq.TaskInfo, error)
}

type Handler struct {
	logger    *slog.Logger
	service   *Service
	enqueuer  Enqueuer
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, enqueuer: enqueuer, validator: validator.New()}
}

// Handle accepts one event over HTTP. The same payload may also arrive via
// the queue worker; both paths converge on Service.Handle and the same
// idempotency record.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	var event ExternalEvent
	if err := httpx.DecodeJSON(r, &event); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validator.Struct(event); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if event.ActorID == 0 {
		event.ActorID = httpx.ActorID(r)
	}
	result, err := h.service.Handle(r.Context(), event)
	if err != nil {
		h.logger.Warn("event rejected", slog.String("event_id", event.EventID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{
		"duplicate":      result.Duplicate,
		"journalEntryId": result.JournalEntryID,
		"entryNumber":    result.EntryNumber,
	})
}

// HandleAsync queues the event instead of posting it inline. The worker
// replays it through Service.Handle, so the idempotency guarantees are the
// same as the synchronous path.
func (h *Handler) HandleAsync(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Fail(w, http.StatusServiceUnavailable, "queue_unavailable", "background queue is not configured")
		return
	}
	var event ExternalEvent
	if err := httpx.DecodeJSON(r, &event); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validator.Struct(event); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if event.ActorID == 0 {
		event.ActorID = httpx.ActorID(r)
	}
	info, err := h.enqueuer.EnqueueLedgerEvent(r.Context(), event)
	if err != nil {
		h.logger.Error("enqueue event", slog.String("event_id", event.EventID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, httpx.Envelope{Success: true, Data: map[string]any{
		"taskId":  info.ID,
		"queue":   info.Queue,
		"eventId": event.EventID,
	}})
}

func (h *Handler) ListProcessed(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListProcessed(r.Context(), httpx.QueryInt(r, "limit", 100))
	if err != nil {
		h.logger.Error("list processed events", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, out)
}
