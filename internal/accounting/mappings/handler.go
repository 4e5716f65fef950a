package mappings

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/finledger/finledger/internal/platform/httpx"
)

type Handler struct {
	logger    *slog.Logger
	repo      Repository
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, repo Repository) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, repo: repo, validator: validator.New()}
}

type upsertMappingRequest struct {
	EventType string `json:"eventType" validate:"required"`
	Key       string `json:"key" validate:"required"`
	AccountID int64  `json:"accountId" validate:"required"`
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	mapping, err := h.repo.Get(r.Context(), r.URL.Query().Get("eventType"), r.URL.Query().Get("key"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, mapping)
}

func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertMappingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	mapping := AccountMapping{EventType: req.EventType, Key: req.Key, AccountID: req.AccountID}
	if err := h.repo.Upsert(r.Context(), mapping); err != nil {
		h.logger.Error("upsert account mapping", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, mapping)
}
