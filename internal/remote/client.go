package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/greyledger/offline-sync/internal/models"
	"github.com/shopspring/decimal"
)

// Ledger is the remote authority the agent synchronizes against. The
// agent treats it as opaque: it owns accounts, balances and transaction
// validation.
type Ledger interface {
	FetchAccounts(ctx context.Context) ([]models.Account, error)
	FetchTransactions(ctx context.Context, accountID string) ([]models.Transaction, error)
	CreateAccount(ctx context.Context, token string, req CreateAccountRequest) (*models.Account, error)
	SubmitTransaction(ctx context.Context, token string, tx models.Transaction) error
}

// CreateAccountRequest is the payload for POST /accounts, used both for
// direct creation and for uploading a queued CREATE_ACCOUNT transaction.
type CreateAccountRequest struct {
	AccountType    string          `json:"account_type"`
	Currency       string          `json:"currency"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// Client is the REST/JSON implementation of Ledger.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) FetchAccounts(ctx context.Context) ([]models.Account, error) {
	var out struct {
		Accounts []models.Account `json:"accounts"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

func (c *Client) FetchTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	var out struct {
		Transactions []models.Transaction `json:"transactions"`
	}
	path := fmt.Sprintf("/accounts/%s/transactions", accountID)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

func (c *Client) CreateAccount(ctx context.Context, token string, req CreateAccountRequest) (*models.Account, error) {
	var out struct {
		Account models.Account `json:"account"`
	}
	if err := c.do(ctx, http.MethodPost, "/accounts", token, req, &out); err != nil {
		return nil, err
	}
	return &out.Account, nil
}

func (c *Client) SubmitTransaction(ctx context.Context, token string, tx models.Transaction) error {
	return c.do(ctx, http.MethodPost, "/submit-transaction", token, tx, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	op := method + " " + path

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ValidationError{Status: resp.StatusCode, Message: errorMessage(resp)}
	default:
		return &NetworkError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
}

// errorMessage pulls a {"message": ...} body if the remote sent one.
func errorMessage(resp *http.Response) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.NewDecoder(resp.Body).Decode(&body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return http.StatusText(resp.StatusCode)
}
