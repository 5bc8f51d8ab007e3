package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	apiContext "payrecon/internal/api/context"
	"payrecon/internal/api/middleware"
	"payrecon/internal/pkg/errors"
	"payrecon/internal/platform/audit"
	"payrecon/internal/platform/models"
)

type TransactionReader interface {
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Transaction, error)
}

// AccessLogger records privileged reads.
type AccessLogger interface {
	Log(ctx context.Context, entry *audit.AuditLog)
}

type TransactionHandler struct {
	transactions TransactionReader
	audit        AccessLogger
}

func NewTransactionHandler(transactions TransactionReader, auditLog AccessLogger) *TransactionHandler {
	return &TransactionHandler{transactions: transactions, audit: auditLog}
}

// List returns the caller's transactions. Admins may pass ?user_id= to read
// another user's ledger.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())
	if claims == nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Unauthorized", nil)
		return
	}

	userID := claims.UserID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		if !claims.IsAdmin() {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid user_id", nil)
			return
		}
		userID = id
	}

	txs, err := h.transactions.ListByUser(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to list transactions")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list transactions", nil)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	if userID != claims.UserID {
		h.audit.Log(r.Context(), audit.FromRequest(r, &audit.AuditLog{
			UserID:       claims.UserID,
			Role:         claims.Role,
			Action:       audit.ActionList,
			ResourceType: audit.ResourceTransaction,
			Metadata:     map[string]interface{}{"user_id": userID, "count": len(txs)},
		}))
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": txs})
}

// Get hides other users' rows behind a 404.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())
	if claims == nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Unauthorized", nil)
		return
	}
	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("transaction_id")

	tx, err := h.transactions.GetByID(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", id).Msg("failed to load transaction")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load transaction", nil)
		return
	}
	if tx == nil || (tx.UserID != claims.UserID && !claims.IsAdmin()) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Transaction not found", nil)
		return
	}
	if tx.UserID != claims.UserID {
		h.audit.Log(r.Context(), audit.FromRequest(r, &audit.AuditLog{
			UserID:       claims.UserID,
			Role:         claims.Role,
			Action:       audit.ActionRead,
			ResourceType: audit.ResourceTransaction,
			ResourceID:   tx.TransactionID,
			Metadata:     map[string]interface{}{"owner_id": tx.UserID},
		}))
	}

	errors.WriteJSON(w, http.StatusOK, tx)
}
