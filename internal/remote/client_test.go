package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/greyledger/offline-sync/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/accounts", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"accounts": []map[string]any{
				{"id": "acc-1", "currency": "USD", "balance": "500", "is_active": true},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	accounts, err := client.FetchAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acc-1", accounts[0].ID)
	assert.Equal(t, "500", accounts[0].Balance.String())
}

func TestSubmitTransaction_CarriesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/submit-transaction", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	err := client.SubmitTransaction(context.Background(), "tok-123", sampleTx())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestSubmitTransaction_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	err := client.SubmitTransaction(context.Background(), "stale", sampleTx())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateAccount_ValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "unsupported currency"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.CreateAccount(context.Background(), "tok", CreateAccountRequest{
		AccountType: "savings",
		Currency:    "XPF",
	})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, http.StatusUnprocessableEntity, verr.Status)
	assert.Equal(t, "unsupported currency", verr.Message)
}

func TestDo_ServerErrorIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.FetchAccounts(context.Background())

	var nerr *NetworkError
	assert.True(t, errors.As(err, &nerr))
}

func TestDo_TransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from now on

	client := NewClient(srv.URL, time.Second)
	_, err := client.FetchAccounts(context.Background())

	var nerr *NetworkError
	assert.True(t, errors.As(err, &nerr))
}

func TestDo_MalformedBodyIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.FetchAccounts(context.Background())

	var nerr *NetworkError
	assert.True(t, errors.As(err, &nerr))
}

func sampleTx() models.Transaction {
	return models.Transaction{
		ID:            "tx-1",
		Kind:          "TRANSFER",
		Amount:        decimal.NewFromInt(100),
		Currency:      "USD",
		FromAccountID: "acc-1",
		ToAccountID:   "acc-2",
	}
}
