package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/greyledger/offline-sync/internal/models"
	"github.com/greyledger/offline-sync/internal/remote"
	"github.com/greyledger/offline-sync/internal/session"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AccountHandler struct {
	session *session.Session
}

func NewAccountHandler(s *session.Session) *AccountHandler {
	return &AccountHandler{session: s}
}

type accountsResponse struct {
	Accounts    []models.Account `json:"accounts"`
	TotalUSD    decimal.Decimal  `json:"total_usd"`
	LastUpdated string           `json:"last_updated,omitempty"`
}

// List returns the authoritative base-state accounts. Staged transactions
// are not reflected here; see Projected.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	led := h.session.Ledger()
	if led == nil {
		RespondError(w, r, http.StatusConflict, "session/not-initialized", "session is not initialized")
		return
	}

	resp := accountsResponse{
		Accounts: led.Accounts(),
		TotalUSD: led.TotalBalance(),
	}
	if last := led.LastUpdated(); !last.IsZero() {
		resp.LastUpdated = last.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	RespondJSON(w, http.StatusOK, resp)
}

type projectedResponse struct {
	Accounts          []models.Account `json:"accounts"`
	TotalUSD          decimal.Decimal  `json:"total_usd"`
	ProjectedTotalUSD decimal.Decimal  `json:"projected_total_usd"`
	StagedCount       int              `json:"staged_count"`
}

// Projected returns the optimistic view: base accounts with all staged
// transactions folded in, plus synthetic pending accounts.
func (h *AccountHandler) Projected(w http.ResponseWriter, r *http.Request) {
	led := h.session.Ledger()
	if led == nil {
		RespondError(w, r, http.StatusConflict, "session/not-initialized", "session is not initialized")
		return
	}

	staged, _ := led.QueueDepths()
	RespondJSON(w, http.StatusOK, projectedResponse{
		Accounts:          led.Project(),
		TotalUSD:          led.TotalBalance(),
		ProjectedTotalUSD: led.ProjectedTotalBalance(),
		StagedCount:       staged,
	})
}

// Transactions proxies the remote transaction history for one account.
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	led := h.session.Ledger()
	if led == nil {
		RespondError(w, r, http.StatusConflict, "session/not-initialized", "session is not initialized")
		return
	}

	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account ID")
		return
	}

	txs, err := led.AccountTransactions(r.Context(), accountID)
	if err != nil {
		if status, pType, msg, ok := mapAgentError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("transaction history fetch failed", zap.Error(err), zap.String("account_id", accountID))
		RespondError(w, r, http.StatusInternalServerError, "account/history-read-failed", "Failed to fetch transactions")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

// Create performs a synchronous, token-gated account creation against the
// remote ledger. Nothing is queued; a failure surfaces immediately.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountType    string          `json:"account_type"`
		Currency       string          `json:"currency"`
		InitialBalance decimal.Decimal `json:"initial_balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.AccountType == "" || req.Currency == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-fields", "account_type and currency are required")
		return
	}

	account, err := h.session.CreateAccountNow(r.Context(), remote.CreateAccountRequest{
		AccountType:    req.AccountType,
		Currency:       req.Currency,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		if status, pType, msg, ok := mapAgentError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create account failed", zap.Error(err), zap.String("account_type", req.AccountType))
		RespondError(w, r, http.StatusInternalServerError, "account/create-failed", "Failed to create account")
		return
	}

	RespondJSON(w, http.StatusCreated, account)
}
