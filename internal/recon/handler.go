package recon

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

type createBankAccountRequest struct {
	AccountID     int64  `json:"accountId" validate:"required"`
	AccountNumber string `json:"accountNumber" validate:"required,min=4,max=40"`
	BankName      string `json:"bankName" validate:"required,min=2,max=120"`
	Status        string `json:"status"`
}

type importStatementRequest struct {
	BankAccountID  int64              `json:"bankAccountId" validate:"required"`
	PeriodStart    time.Time          `json:"periodStart" validate:"required"`
	PeriodEnd      time.Time          `json:"periodEnd" validate:"required"`
	OpeningBalance float64            `json:"openingBalance"`
	ClosingBalance float64            `json:"closingBalance"`
	Transactions   []TransactionInput `json:"transactions" validate:"dive"`
}

type matchRequest struct {
	JournalLineID int64 `json:"journalLineId" validate:"required"`
}

func (h *Handler) ListBankAccounts(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListBankAccounts(r.Context())
	if err != nil {
		h.logger.Error("list bank accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, out)
}

func (h *Handler) CreateBankAccount(w http.ResponseWriter, r *http.Request) {
	var req createBankAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.CreateBankAccount(r.Context(), BankAccount{
		AccountID:     req.AccountID,
		AccountNumber: req.AccountNumber,
		BankName:      req.BankName,
		Status:        BankAccountStatus(req.Status),
	})
	if err != nil {
		if errors.Is(err, ErrAccountNumberTaken) {
			httpx.Fail(w, http.StatusConflict, "ACCOUNT_NUMBER_TAKEN", err.Error())
			return
		}
		h.logger.Warn("create bank account rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, account)
}

func (h *Handler) ImportStatement(w http.ResponseWriter, r *http.Request) {
	var req importStatementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.ImportStatement(r.Context(), ImportInput{
		BankAccountID:  req.BankAccountID,
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		OpeningBalance: req.OpeningBalance,
		ClosingBalance: req.ClosingBalance,
		Transactions:   req.Transactions,
	}, httpx.ActorID(r))
	if err != nil {
		if errors.Is(err, ErrBankAccountNotActive) {
			httpx.BadRequest(w, err.Error())
			return
		}
		h.logger.Warn("import statement rejected", slog.Int64("bank_account_id", req.BankAccountID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, result)
}

func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid statement id")
		return
	}
	statement, err := h.service.GetStatement(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, statement)
}

func (h *Handler) ListStatements(w http.ResponseWriter, r *http.Request) {
	bankAccountID := int64(httpx.QueryInt(r, "bankAccountId", 0))
	if bankAccountID == 0 {
		httpx.BadRequest(w, "bankAccountId query parameter is required")
		return
	}
	out, err := h.service.ListStatements(r.Context(), bankAccountID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, out)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid statement id")
		return
	}
	out, err := h.service.ListTransactions(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, out)
}

func (h *Handler) ValidateTotals(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid statement id")
		return
	}
	report, err := h.service.ValidateTotals(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, report)
}

func (h *Handler) DeleteStatement(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid statement id")
		return
	}
	if err := h.service.DeleteStatement(r.Context(), id, httpx.ActorID(r)); err != nil {
		h.logger.Warn("delete statement rejected", slog.Int64("statement_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"deleted": id})
}

func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid transaction id")
		return
	}
	var req matchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	tx, err := h.service.Match(r.Context(), id, req.JournalLineID, httpx.ActorID(r))
	if err != nil {
		h.respondMatchError(w, err)
		return
	}
	httpx.OK(w, tx)
}

func (h *Handler) Unmatch(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid transaction id")
		return
	}
	tx, err := h.service.Unmatch(r.Context(), id, httpx.ActorID(r))
	if err != nil {
		h.respondMatchError(w, err)
		return
	}
	httpx.OK(w, tx)
}

func (h *Handler) Ignore(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid transaction id")
		return
	}
	tx, err := h.service.Ignore(r.Context(), id, httpx.ActorID(r))
	if err != nil {
		h.respondMatchError(w, err)
		return
	}
	httpx.OK(w, tx)
}

func (h *Handler) SuggestMatches(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.BadRequest(w, "invalid transaction id")
		return
	}
	out, err := h.service.SuggestMatches(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, out)
}

func (h *Handler) respondMatchError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrAlreadyMatched) || errors.Is(err, ErrNotMatched) {
		httpx.BadRequest(w, err.Error())
		return
	}
	httpx.RespondError(w, err)
}
