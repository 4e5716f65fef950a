package periods

import (
	"log/slog"
	"net/http"

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

type periodRequest struct {
	FiscalYear  int    `json:"fiscalYear" validate:"required,min=2000,max=2100"`
	FiscalMonth int    `json:"fiscalMonth" validate:"required,min=1,max=12"`
	Reason      string `json:"reason"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	year := httpx.QueryInt(r, "year", 0)
	if year == 0 {
		httpx.BadRequest(w, "year query parameter is required")
		return
	}
	out, err := h.service.List(r.Context(), year)
	if err != nil {
		h.logger.Error("list periods", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, out)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	year := httpx.QueryInt(r, "year", 0)
	month := httpx.QueryInt(r, "month", 0)
	if !(Key{Year: year, Month: month}).Valid() {
		httpx.BadRequest(w, "year and month query parameters are required")
		return
	}
	open, err := h.service.IsOpen(r.Context(), Key{Year: year, Month: month})
	if err != nil {
		h.logger.Error("period status", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"fiscalYear": year, "fiscalMonth": month, "isOpen": open})
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(req periodRequest) (FiscalPeriod, error) {
		return h.service.Close(r.Context(), Key{Year: req.FiscalYear, Month: req.FiscalMonth}, httpx.ActorID(r))
	})
}

func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(req periodRequest) (FiscalPeriod, error) {
		return h.service.Reopen(r.Context(), Key{Year: req.FiscalYear, Month: req.FiscalMonth}, req.Reason, httpx.ActorID(r))
	})
}

func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(req periodRequest) (FiscalPeriod, error) {
		return h.service.Lock(r.Context(), Key{Year: req.FiscalYear, Month: req.FiscalMonth}, httpx.ActorID(r))
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(periodRequest) (FiscalPeriod, error)) {
	var req periodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := op(req)
	if err != nil {
		h.logger.Warn("period transition rejected",
			slog.Int("fiscal_year", req.FiscalYear),
			slog.Int("fiscal_month", req.FiscalMonth),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, period)
}
