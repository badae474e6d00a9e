package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/greyledger/offline-sync/internal/domain"
	"github.com/greyledger/offline-sync/internal/models"
	"github.com/greyledger/offline-sync/internal/session"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type TransactionHandler struct {
	session *session.Session
}

func NewTransactionHandler(s *session.Session) *TransactionHandler {
	return &TransactionHandler{session: s}
}

type stageRequest struct {
	Kind           string          `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	FromAccountID  string          `json:"from_account_id,omitempty"`
	ToAccountID    string          `json:"to_account_id,omitempty"`
	AccountID      string          `json:"account_id,omitempty"`
	AccountType    string          `json:"account_type,omitempty"`
	InitialBalance decimal.Decimal `json:"initial_balance,omitempty"`
	Description    string          `json:"description,omitempty"`
	Channel        string          `json:"channel,omitempty"`
	Location       string          `json:"location,omitempty"`
}

// Stage appends a transaction to the staged queue. Local only: no
// network, no token needed, visible in the projection immediately.
func (h *TransactionHandler) Stage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	kind := domain.NormalizeKind(req.Kind)
	if kind == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-kind", "kind is required")
		return
	}

	tx, err := h.session.Stage(r.Context(), models.Transaction{
		Kind:           kind,
		Amount:         req.Amount,
		Currency:       req.Currency,
		FromAccountID:  req.FromAccountID,
		ToAccountID:    req.ToAccountID,
		AccountID:      req.AccountID,
		AccountType:    req.AccountType,
		InitialBalance: req.InitialBalance,
		Description:    req.Description,
		Channel:        req.Channel,
		Location:       req.Location,
	})
	if err != nil {
		if status, pType, msg, ok := mapAgentError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("stage transaction failed", zap.Error(err), zap.String("kind", kind))
		RespondError(w, r, http.StatusInternalServerError, "transaction/stage-failed", "Failed to stage transaction")
		return
	}

	RespondJSON(w, http.StatusCreated, tx)
}

// ListStaged returns the current staged queue.
func (h *TransactionHandler) ListStaged(w http.ResponseWriter, r *http.Request) {
	led := h.session.Ledger()
	if led == nil {
		RespondError(w, r, http.StatusConflict, "session/not-initialized", "session is not initialized")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"transactions": led.StagedTransactions()})
}

type commitRequest struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry,omitzero"`
}

// Commit stores the fresh verification token and moves the staged queue
// to the committed queue, which the sync worker then drains.
func (h *TransactionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.Token == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-token", "token is required")
		return
	}

	moved, err := h.session.CommitAndAuthorizeStagedChanges(r.Context(), req.Token, req.Expiry)
	if err != nil {
		if status, pType, msg, ok := mapAgentError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("commit failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "transaction/commit-failed", "Failed to commit staged transactions")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]int{"committed": moved})
}

// Discard clears the staged queue. Committed transactions are untouched.
func (h *TransactionHandler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Discard(r.Context()); err != nil {
		if status, pType, msg, ok := mapAgentError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("discard failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "transaction/discard-failed", "Failed to discard staged transactions")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitNow performs a synchronous, token-gated submission bypassing the
// queues. Used by flows where the user explicitly waits for the remote.
func (h *TransactionHandler) SubmitNow(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	kind := domain.NormalizeKind(req.Kind)
	if kind == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-kind", "kind is required")
		return
	}

	tx := models.Transaction{
		Kind:          kind,
		Amount:        req.Amount,
		Currency:      req.Currency,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		AccountID:     req.AccountID,
		Description:   req.Description,
		Channel:       req.Channel,
		Location:      req.Location,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.session.SubmitTransactionNow(r.Context(), tx); err != nil {
		if status, pType, msg, ok := mapAgentError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("submit transaction failed", zap.Error(err), zap.String("kind", kind))
		RespondError(w, r, http.StatusInternalServerError, "transaction/submit-failed", "Failed to submit transaction")
		return
	}

	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "submitted"})
}
