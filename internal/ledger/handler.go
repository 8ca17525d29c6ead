package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

const dateLayout = "2006-01-02"

// Services groups the ledger components exposed over HTTP.
type Services struct {
	Accounts   *AccountLedger
	Categories *CategoryGuard
	Engine     *TransactionEngine
	Transfers  *TransferCoordinator
	Scheduler  *RecurringScheduler
}

// Handler wires the ledger JSON API.
type Handler struct {
	logger    *slog.Logger
	svc       Services
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, svc Services) *Handler {
	return &Handler{logger: logOrDefault(logger), svc: svc, validator: validator.New()}
}

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.listAccounts)
		r.Post("/", h.createAccount)
		r.Get("/{id}", h.getAccount)
		r.Patch("/{id}", h.renameAccount)
		r.Post("/{id}/deactivate", h.deactivateAccount)
		r.Get("/{id}/transactions", h.listTransactions)
	})
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.listCategories)
		r.Post("/", h.createCategory)
	})
	r.Route("/transactions", func(r chi.Router) {
		r.Post("/", h.saveTransaction)
		r.Get("/{id}", h.getTransaction)
		r.Delete("/{id}", h.deleteTransaction)
	})
	r.Post("/transfers", h.transferFunds)
	r.Route("/recurring", func(r chi.Router) {
		r.Get("/", h.listRecurring)
		r.Post("/", h.createRecurring)
		r.Get("/{id}", h.getRecurring)
		r.Delete("/{id}", h.deleteRecurring)
		r.Post("/{id}/pause", h.pauseRecurring)
		r.Post("/{id}/resume", h.resumeRecurring)
		r.Put("/{id}/amount", h.updateRecurringAmount)
		r.Put("/{id}/account", h.updateRecurringAccount)
		r.Put("/{id}/next-due", h.updateRecurringNextDue)
	})
}

type accountResponse struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Active    bool            `json:"active"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{ID: a.ID, Name: a.Name, Balance: a.Balance, Active: a.Active, Version: a.Version, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt}
}

type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type transactionResponse struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	CategoryID  int64           `json:"category_id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Date        string          `json:"date"`
	Description string          `json:"description,omitempty"`
	TransferID  string          `json:"transfer_id,omitempty"`
	RecurringID *int64          `json:"recurring_id,omitempty"`
}

func toTransactionResponse(t Transaction) transactionResponse {
	out := transactionResponse{
		ID:          t.ID,
		AccountID:   t.AccountID,
		CategoryID:  t.CategoryID,
		Amount:      t.Amount,
		Type:        t.Type,
		Date:        t.Date.Format(dateLayout),
		Description: t.Description,
		RecurringID: t.RecurringID,
	}
	if t.TransferID != uuid.Nil {
		out.TransferID = t.TransferID.String()
	}
	return out
}

type recurringResponse struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   int64           `json:"account_id"`
	CategoryID  int64           `json:"category_id"`
	Frequency   Frequency       `json:"frequency"`
	StartDate   string          `json:"start_date"`
	NextDueDate string          `json:"next_due_date,omitempty"`
	LastPayment string          `json:"last_payment,omitempty"`
	Active      bool            `json:"active"`
}

func toRecurringResponse(r RecurringExpense) recurringResponse {
	out := recurringResponse{
		ID:         r.ID,
		Name:       r.Name,
		Amount:     r.Amount,
		AccountID:  r.AccountID,
		CategoryID: r.CategoryID,
		Frequency:  r.Frequency,
		StartDate:  r.StartDate.Format(dateLayout),
		Active:     r.Active,
	}
	if r.NextDueDate != nil {
		out.NextDueDate = r.NextDueDate.Format(dateLayout)
	}
	if r.LastPayment != nil {
		out.LastPayment = r.LastPayment.Format(dateLayout)
	}
	return out
}

type createAccountRequest struct {
	Name           string `json:"name" validate:"required,max=120"`
	InitialBalance string `json:"initial_balance" validate:"omitempty,numeric"`
}

type renameAccountRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type createCategoryRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type saveTransactionRequest struct {
	AccountName string `json:"account_name" validate:"required"`
	CategoryID  int64  `json:"category_id" validate:"required,gt=0"`
	Amount      string `json:"amount" validate:"required,numeric"`
	Type        string `json:"type" validate:"required"`
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description string `json:"description" validate:"max=255"`
}

type transferRequest struct {
	AnchorAccountID int64  `json:"anchor_account_id" validate:"required,gt=0"`
	Amount          string `json:"amount" validate:"required,numeric"`
	Direction       string `json:"direction" validate:"required"`
	CounterpartName string `json:"counterpart_name" validate:"required"`
	Date            string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type createRecurringRequest struct {
	Name       string `json:"name" validate:"required,max=120"`
	Amount     string `json:"amount" validate:"required,numeric"`
	AccountID  int64  `json:"account_id" validate:"required,gt=0"`
	CategoryID int64  `json:"category_id" validate:"required,gt=0"`
	Frequency  string `json:"frequency" validate:"required"`
	StartDate  string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

type recurringAmountRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
}

type recurringAccountRequest struct {
	AccountID int64 `json:"account_id" validate:"required,gt=0"`
}

type recurringNextDueRequest struct {
	NextDueDate string `json:"next_due_date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	accounts, err := h.svc.Accounts.List(r.Context(), owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	balance := decimal.Zero
	if req.InitialBalance != "" {
		var err error
		if balance, err = parseAmount(req.InitialBalance); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	account, err := h.svc.Accounts.Create(r.Context(), owner, CreateAccountInput{Name: req.Name, InitialBalance: balance})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	account, err := h.svc.Accounts.Get(r.Context(), owner, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) renameAccount(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	var req renameAccountRequest
	if err := httpx.DecodeJSON(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.svc.Accounts.Rename(r.Context(), owner, id, req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	account, err := h.svc.Accounts.Deactivate(r.Context(), owner, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	txns, err := h.svc.Engine.ListTransactions(r.Context(), owner, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.owner(w, r); !ok {
		return
	}
	categories, err := h.svc.Categories.ListSelectable(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.owner(w, r); !ok {
		return
	}
	var req createCategoryRequest
	if err := httpx.DecodeJSON(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	category, err := h.svc.Categories.Create(r.Context(), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, categoryResponse{ID: category.ID, Name: category.Name})
}

func (h *Handler) saveTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req saveTransactionRequest
	if err := httpx.DecodeJSON(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	txn, err := h.svc.Engine.SaveTransaction(r.Context(), owner, SaveTransactionInput{
		AccountName: req.AccountName,
		CategoryID:  req.CategoryID,
		Amount:      amount,
		Type:        TransactionType(strings.ToUpper(req.Type)),
		Date:        date,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(txn))
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	txn, err := h.svc.Engine.GetTransactionByID(r.Context(), owner, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(txn))
}

func (h *Handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Engine.DeleteTransaction(r.Context(), owner, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transferFunds(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	anchor, err := h.svc.Transfers.TransferFunds(r.Context(), owner, TransferInput{
		AnchorAccountID: req.AnchorAccountID,
		Amount:          amount,
		Direction:       TransferDirection(strings.ToUpper(req.Direction)),
		CounterpartName: req.CounterpartName,
		Date:            date,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(anchor))
}

func (h *Handler) listRecurring(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Scheduler.List(r.Context(), owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]recurringResponse, 0, len(list))
	for _, e := range list {
		out = append(out, toRecurringResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createRecurring(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req createRecurringRequest
	if err := httpx.DecodeJSON(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	freq, err := ParseFrequency(req.Frequency)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.svc.Scheduler.Create(r.Context(), owner, CreateRecurringInput{
		Name:       req.Name,
		Amount:     amount,
		AccountID:  req.AccountID,
		CategoryID: req.CategoryID,
		Frequency:  freq,
		StartDate:  start,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRecurringResponse(created))
}

func (h *Handler) getRecurring(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	e, err := h.svc.Scheduler.Get(r.Context(), owner, id)
	h.respondRecurring(w, r, e, err)
}

func (h *Handler) deleteRecurring(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Scheduler.Delete(r.Context(), owner, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pauseRecurring(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	e, err := h.svc.Scheduler.Pause(r.Context(), owner, id)
	h.respondRecurring(w, r, e, err)
}

func (h *Handler) resumeRecurring(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	e, err := h.svc.Scheduler.Resume(r.Context(), owner, id)
	h.respondRecurring(w, r, e, err)
}

func (h *Handler) updateRecurringAmount(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	var req recurringAmountRequest
	if err := httpx.DecodeJSON(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.svc.Scheduler.UpdateAmount(r.Context(), owner, id, amount)
	h.respondRecurring(w, r, e, err)
}

func (h *Handler) updateRecurringAccount(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	var req recurringAccountRequest
	if err := httpx.DecodeJSON(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.svc.Scheduler.UpdateAccount(r.Context(), owner, id, req.AccountID)
	h.respondRecurring(w, r, e, err)
}

func (h *Handler) updateRecurringNextDue(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	var req recurringNextDueRequest
	if err := httpx.DecodeJSON(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	due, err := parseDate(req.NextDueDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.svc.Scheduler.UpdateNextDueDate(r.Context(), owner, id, due)
	h.respondRecurring(w, r, e, err)
}

func (h *Handler) respondRecurring(w http.ResponseWriter, r *http.Request, e RecurringExpense, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecurringResponse(e))
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	owner, ok := shared.OwnerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return 0, false
	}
	return owner, true
}

func (h *Handler) ownerAndID(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	owner, ok := h.owner(w, r)
	if !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.NewKindError(shared.ErrBadRequest, "invalid id"))
		return 0, 0, false
	}
	return owner, id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if shared.KindOf(err) == nil || isKind(err, shared.ErrUnavailable) {
		h.logger.Error("ledger request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, shared.NewKindError(shared.ErrBadRequest, "invalid date")
	}
	return t, nil
}
