package journals

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/finledger/finledger/internal/platform/httpx"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type lineRequest struct {
	AccountID     int64   `json:"accountId" validate:"required"`
	Direction     string  `json:"direction" validate:"required,oneof=DEBIT CREDIT"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	CustomerID    *int64  `json:"customerId,omitempty"`
	SalesPersonID *int64  `json:"salesPersonId,omitempty"`
	WarehouseID   *int64  `json:"warehouseId,omitempty"`
	SalesChannel  *string `json:"salesChannel,omitempty"`
}

type createEntryRequest struct {
	EntryDate         time.Time     `json:"entryDate" validate:"required"`
	EntryType         string        `json:"entryType"`
	SourceService     string        `json:"sourceService"`
	SourceReferenceID string        `json:"sourceReferenceId"`
	Description       string        `json:"description"`
	Lines             []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (r createEntryRequest) toInput(actorID int64) CreateInput {
	entryType := EntryType(r.EntryType)
	if r.EntryType == "" {
		entryType = EntryTypeManual
	}
	source := r.SourceService
	if source == "" {
		source = "manual"
	}
	lines := make([]LineInput, 0, len(r.Lines))
	for _, line := range r.Lines {
		lines = append(lines, LineInput{
			AccountID:     line.AccountID,
			Direction:     Direction(line.Direction),
			Amount:        line.Amount,
			CustomerID:    line.CustomerID,
			SalesPersonID: line.SalesPersonID,
			WarehouseID:   line.WarehouseID,
			SalesChannel:  line.SalesChannel,
		})
	}
	return CreateInput{
		EntryDate:         r.EntryDate,
		EntryType:         entryType,
		SourceService:     source,
		SourceReferenceID: r.SourceReferenceID,
		Description:       r.Description,
		CreatedBy:         actorID,
		Lines:             lines,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Status:        EntryStatus(r.URL.Query().Get("status")),
		SourceService: r.URL.Query().Get("sourceService"),
		Limit:         httpx.QueryInt(r, "limit", 50),
	}
	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list journal entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, entries)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, entry)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Create(r.Context(), req.toInput(httpx.ActorID(r)))
	if err != nil {
		h.logger.Warn("create journal entry rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, entry)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid entry id")
		return
	}
	entry, err := h.service.Post(r.Context(), id, httpx.ActorID(r))
	if err != nil {
		h.logger.Warn("post journal entry rejected", slog.Int64("entry_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, entry)
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid entry id")
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	entry, err := h.service.Void(r.Context(), id, req.Reason, httpx.ActorID(r))
	if err != nil {
		h.logger.Warn("void journal entry rejected", slog.Int64("entry_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, entry)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid entry id")
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	entry, err := h.service.Reverse(r.Context(), id, req.Reason, httpx.ActorID(r))
	if err != nil {
		h.logger.Warn("reverse journal entry rejected", slog.Int64("entry_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, entry)
}

func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid entry id")
		return
	}
	if err := h.service.DeleteDraft(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"deleted": id})
}
