package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a server-confirmed account as reported by the remote ledger.
// Pending is set only on synthetic accounts inserted by the projection for
// not-yet-confirmed CREATE_ACCOUNT transactions; it never appears in
// persisted base state.
type Account struct {
	ID            string          `json:"id"`
	AccountType   string          `json:"account_type"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Pending       bool            `json:"pending,omitempty"`
}

// Transaction is a financial operation staged on the device. The ID is
// client-generated; the remote assigns its own identifier once the
// transaction is confirmed.
type Transaction struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	FromAccountID string `json:"from_account_id,omitempty"`
	ToAccountID   string `json:"to_account_id,omitempty"`
	AccountID     string `json:"account_id,omitempty"`

	// CREATE_ACCOUNT only.
	AccountType    string          `json:"account_type,omitempty"`
	InitialBalance decimal.Decimal `json:"initial_balance"`

	Description string    `json:"description,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	Location    string    `json:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// BaseState is the last known server-confirmed snapshot.
type BaseState struct {
	Accounts    []Account `json:"accounts"`
	LastUpdated time.Time `json:"last_updated"`
}

// MfaToken is the persisted form of the step-up authorization credential.
type MfaToken struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}
