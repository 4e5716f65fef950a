package depreciation

import (
	"errors"
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

type createAssetRequest struct {
	AssetCode            string    `json:"assetCode" validate:"required,min=2,max=40"`
	Name                 string    `json:"name" validate:"required,min=2,max=120"`
	AcquisitionDate      time.Time `json:"acquisitionDate" validate:"required"`
	InServiceDate        time.Time `json:"inServiceDate"`
	Cost                 float64   `json:"cost" validate:"required,gt=0"`
	SalvageValue         float64   `json:"salvageValue" validate:"gte=0"`
	UsefulLifeMonths     int       `json:"usefulLifeMonths" validate:"required,gt=0"`
	Method               string    `json:"method"`
	ExpenseAccountID     *int64    `json:"expenseAccountId,omitempty"`
	AccumulatedAccountID *int64    `json:"accumulatedAccountId,omitempty"`
}

type runPeriodRequest struct {
	FiscalYear  int `json:"fiscalYear" validate:"required,min=2000,max=2100"`
	FiscalMonth int `json:"fiscalMonth" validate:"required,min=1,max=12"`
}

type reverseRunRequest struct {
	Reason string `json:"reason" validate:"required,min=5"`
}

func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	asset, err := h.service.CreateAsset(r.Context(), FixedAsset{
		AssetCode:            req.AssetCode,
		Name:                 req.Name,
		AcquisitionDate:      req.AcquisitionDate,
		InServiceDate:        req.InServiceDate,
		Cost:                 req.Cost,
		SalvageValue:         req.SalvageValue,
		UsefulLifeMonths:     req.UsefulLifeMonths,
		Method:               Method(req.Method),
		ExpenseAccountID:     req.ExpenseAccountID,
		AccumulatedAccountID: req.AccumulatedAccountID,
	})
	if err != nil {
		h.logger.Warn("create asset rejected", slog.String("asset_code", req.AssetCode), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, asset)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	year := httpx.QueryInt(r, "year", 0)
	month := httpx.QueryInt(r, "month", 0)
	preview, err := h.service.Preview(r.Context(), year, month)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, preview)
}

func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req runPeriodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	run, err := h.service.Calculate(r.Context(), req.FiscalYear, req.FiscalMonth, httpx.ActorID(r))
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	httpx.Created(w, run)
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListRuns(r.Context(), httpx.QueryInt(r, "limit", 50))
	if err != nil {
		h.logger.Error("list depreciation runs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, out)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid run id")
		return
	}
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, run)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid run id")
		return
	}
	run, err := h.service.Post(r.Context(), id, httpx.ActorID(r))
	if err != nil {
		h.logger.Warn("post depreciation run rejected", slog.Int64("run_id", id), slog.Any("error", err))
		h.respondRunError(w, err)
		return
	}
	httpx.OK(w, run)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid run id")
		return
	}
	var req reverseRunRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	run, err := h.service.Reverse(r.Context(), id, req.Reason, httpx.ActorID(r))
	if err != nil {
		h.logger.Warn("reverse depreciation run rejected", slog.Int64("run_id", id), slog.Any("error", err))
		h.respondRunError(w, err)
		return
	}
	httpx.OK(w, run)
}

func (h *Handler) respondRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPeriodAlreadyCalculated):
		httpx.Fail(w, http.StatusConflict, "PERIOD_ALREADY_CALCULATED", err.Error())
	case errors.Is(err, ErrNothingToDepreciate):
		httpx.BadRequest(w, err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
