package accounts

import (
	"errors"
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

type createAccountRequest struct {
	Code            string `json:"code" validate:"required,min=2,max=20"`
	Name            string `json:"name" validate:"required,min=2,max=120"`
	Type            string `json:"type" validate:"required"`
	NormalBalance   string `json:"normalBalance"`
	IsDetailAccount bool   `json:"isDetailAccount"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid account id")
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, account)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Create(r.Context(), Account{
		Code:            req.Code,
		Name:            req.Name,
		Type:            AccountType(req.Type),
		NormalBalance:   NormalBalance(req.NormalBalance),
		IsDetailAccount: req.IsDetailAccount,
	})
	if err != nil {
		h.logger.Warn("create account rejected", slog.String("code", req.Code), slog.Any("error", err))
		if errors.Is(err, ErrCodeTaken) {
			httpx.Fail(w, http.StatusConflict, "ACCOUNT_CODE_TAKEN", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, account)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid account id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrSystemAccount) || errors.Is(err, ErrAccountInUse) {
			httpx.BadRequest(w, err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"deleted": id})
}
