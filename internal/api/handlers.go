/**
 * @description
 * HTTP handlers for accounts, transfers, scheduled and recurring payments and the
 * activity log. Handlers decode the request, call the application services and
 * translate service errors into status codes in one place.
 *
 * @dependencies
 * - internal/app, internal/domain: service logic, models and error sentinels.
 * - go-chi/chi: URL parameters.
 */

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/app"
	"github.com/HampusCastle/BankApp-Backend-sub000/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler holds the application services the HTTP layer talks to.
type Handler struct {
	accounts  *app.AccountService
	transfers app.Transferer
	scheduled *app.ScheduledPaymentService
	recurring *app.RecurringPaymentService
	limiter   app.RateLimiter
	logger    *slog.Logger
}

// NewHandler creates a Handler. limiter may be nil to disable transfer throttling.
func NewHandler(accounts *app.AccountService, transfers app.Transferer, scheduled *app.ScheduledPaymentService, recurring *app.RecurringPaymentService, limiter app.RateLimiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		accounts:  accounts,
		transfers: transfers,
		scheduled: scheduled,
		recurring: recurring,
		limiter:   limiter,
		logger:    logger,
	}
}

// --- Accounts ---

func (h *Handler) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req domain.CreateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := h.accounts.OpenAccount(r.Context(), ownerID, req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	accounts, err := h.accounts.ListAccounts(r.Context(), ownerID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(accounts))
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	accountID, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	account, err := h.accounts.GetAccount(r.Context(), ownerID, accountID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	accountID, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	txs, err := h.accounts.ListTransactions(r.Context(), ownerID, accountID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(txs))
}

// --- Transfers ---

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req domain.TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tx, err := h.transfers.Transfer(r.Context(), ownerID, req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	transactionID, ok := pathUUID(w, r, "transactionID")
	if !ok {
		return
	}
	tx, err := h.accounts.GetTransaction(r.Context(), ownerID, transactionID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// --- Scheduled payments ---

func (h *Handler) handleCreateScheduledPayment(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req domain.CreateScheduledPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	payment, err := h.scheduled.Create(r.Context(), ownerID, req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (h *Handler) handleListScheduledPayments(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	payments, err := h.scheduled.List(r.Context(), ownerID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(payments))
}

func (h *Handler) handleGetScheduledPayment(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	paymentID, ok := pathUUID(w, r, "paymentID")
	if !ok {
		return
	}
	payment, err := h.scheduled.Get(r.Context(), ownerID, paymentID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) handleUpdateScheduledPayment(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	paymentID, ok := pathUUID(w, r, "paymentID")
	if !ok {
		return
	}
	var req domain.UpdateScheduledPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	payment, err := h.scheduled.Update(r.Context(), ownerID, paymentID, req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) handleDeleteScheduledPayment(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	paymentID, ok := pathUUID(w, r, "paymentID")
	if !ok {
		return
	}
	if err := h.scheduled.Delete(r.Context(), ownerID, paymentID); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Recurring payments ---

func (h *Handler) handleCreateRecurringPayment(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req domain.CreateRecurringPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	payment, err := h.recurring.Create(r.Context(), ownerID, req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (h *Handler) handleListRecurringPayments(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	payments, err := h.recurring.List(r.Context(), ownerID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(payments))
}

func (h *Handler) handleGetRecurringPayment(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	paymentID, ok := pathUUID(w, r, "paymentID")
	if !ok {
		return
	}
	payment, err := h.recurring.Get(r.Context(), ownerID, paymentID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) handleUpdateRecurringPayment(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	paymentID, ok := pathUUID(w, r, "paymentID")
	if !ok {
		return
	}
	var req domain.UpdateRecurringPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	payment, err := h.recurring.Update(r.Context(), ownerID, paymentID, req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// handleCancelRecurringPayment cancels rather than deletes; the record stays for history.
func (h *Handler) handleCancelRecurringPayment(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	paymentID, ok := pathUUID(w, r, "paymentID")
	if !ok {
		return
	}
	if err := h.recurring.Cancel(r.Context(), ownerID, paymentID); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Activity ---

func (h *Handler) handleListActivity(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}
	entries, err := h.accounts.ListActivity(r.Context(), ownerID, limit)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// --- Helpers ---

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID, ok := GetOwnerID(r.Context())
	if !ok || ownerID == "" {
		writeError(w, http.StatusUnauthorized, "Could not get owner ID from context")
		return "", false
	}
	return ownerID, true
}

func (h *Handler) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrSameAccount),
		errors.Is(err, app.ErrInvalidSchedule):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrUnauthorizedAccount):
		return http.StatusForbidden
	case errors.Is(err, app.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, new(*app.AccountNotFoundError)):
		return http.StatusNotFound
	case errors.Is(err, app.ErrPaymentCanceled),
		errors.Is(err, app.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, app.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
