package remote

import (
	"context"
	"sync"

	"github.com/greyledger/offline-sync/internal/models"
)

// Mock is a scriptable in-memory Ledger for tests. Each Submit/Create
// call consumes the next scripted error (nil means success); when the
// script runs out, calls succeed.
type Mock struct {
	mu sync.Mutex

	Accounts     []models.Account
	Transactions map[string][]models.Transaction

	FetchErr   error
	uploadErrs []error

	SubmittedTxs    []models.Transaction
	CreatedAccounts []CreateAccountRequest
	UsedTokens      []string
	FetchCalls      int
}

func NewMock() *Mock {
	return &Mock{Transactions: make(map[string][]models.Transaction)}
}

// ScriptUploadResults queues outcomes for subsequent upload calls.
func (m *Mock) ScriptUploadResults(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErrs = append(m.uploadErrs, errs...)
}

func (m *Mock) FetchAccounts(_ context.Context) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls++
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	out := make([]models.Account, len(m.Accounts))
	copy(out, m.Accounts)
	return out, nil
}

func (m *Mock) FetchTransactions(_ context.Context, accountID string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	return m.Transactions[accountID], nil
}

func (m *Mock) CreateAccount(_ context.Context, token string, req CreateAccountRequest) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextUploadErr(); err != nil {
		return nil, err
	}
	m.UsedTokens = append(m.UsedTokens, token)
	m.CreatedAccounts = append(m.CreatedAccounts, req)
	return &models.Account{
		ID:          "acct-" + req.AccountType,
		AccountType: req.AccountType,
		Currency:    req.Currency,
		Balance:     req.InitialBalance,
		IsActive:    true,
	}, nil
}

func (m *Mock) SubmitTransaction(_ context.Context, token string, tx models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextUploadErr(); err != nil {
		return err
	}
	m.UsedTokens = append(m.UsedTokens, token)
	m.SubmittedTxs = append(m.SubmittedTxs, tx)
	return nil
}

func (m *Mock) nextUploadErr() error {
	if len(m.uploadErrs) == 0 {
		return nil
	}
	err := m.uploadErrs[0]
	m.uploadErrs = m.uploadErrs[1:]
	return err
}
