package ledger

import (
	"time"

	"github.com/greyledger/offline-sync/internal/domain"
	"github.com/greyledger/offline-sync/internal/models"
	"github.com/shopspring/decimal"
)

// Project returns a fresh snapshot of the base-state accounts with every
// staged transaction's effect applied in insertion order. The result is a
// derived view: neither base state nor the staged queue is mutated, and
// projected balances are never persisted as authoritative.
func (l *Ledger) Project() []models.Account {
	l.mu.Lock()
	accounts := append([]models.Account{}, l.base.Accounts...)
	staged := append([]models.Transaction{}, l.staged...)
	l.mu.Unlock()

	for _, tx := range staged {
		accounts = applyEffect(accounts, tx)
	}
	return accounts
}

// TotalBalance is the authoritative total across base-state accounts,
// converted to USD.
func (l *Ledger) TotalBalance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sumUSD(l.base.Accounts, false)
}

// ProjectedTotalBalance is the USD total as if all staged transactions
// had already applied, including pending account creations.
func (l *Ledger) ProjectedTotalBalance() decimal.Decimal {
	return sumUSD(l.Project(), true)
}

// applyEffect folds one staged transaction into the account snapshot.
// Unknown kinds are effect-free so newer clients' queues survive older
// projections.
func applyEffect(accounts []models.Account, tx models.Transaction) []models.Account {
	switch domain.NormalizeKind(tx.Kind) {
	case domain.KindTransfer:
		for i := range accounts {
			switch accounts[i].ID {
			case tx.FromAccountID:
				accounts[i].Balance = accounts[i].Balance.Sub(tx.Amount)
			case tx.ToAccountID:
				accounts[i].Balance = accounts[i].Balance.Add(tx.Amount)
			}
		}
	case domain.KindDebit:
		for i := range accounts {
			if accounts[i].ID == tx.AccountID {
				accounts[i].Balance = accounts[i].Balance.Sub(tx.Amount)
			}
		}
	case domain.KindCredit:
		for i := range accounts {
			if accounts[i].ID == tx.AccountID {
				accounts[i].Balance = accounts[i].Balance.Add(tx.Amount)
			}
		}
	case domain.KindCreateAccount:
		accounts = append(accounts, pendingAccount(tx))
	}
	return accounts
}

// pendingAccount builds the synthetic placeholder representing an
// unconfirmed account-creation request.
func pendingAccount(tx models.Transaction) models.Account {
	currency := tx.Currency
	if currency == "" {
		currency = "USD"
	}
	now := tx.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return models.Account{
		ID:            "pending_" + tx.ID,
		AccountType:   tx.AccountType,
		AccountNumber: "PENDING",
		Balance:       tx.InitialBalance,
		Currency:      currency,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
		Pending:       true,
	}
}

func sumUSD(accounts []models.Account, includePending bool) decimal.Decimal {
	total := decimal.Zero
	for _, acc := range accounts {
		if acc.Pending && !includePending {
			continue
		}
		total = total.Add(domain.ToUSD(acc.Balance, acc.Currency))
	}
	return total
}
