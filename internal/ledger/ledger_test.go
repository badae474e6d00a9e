package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/greyledger/offline-sync/internal/crypto"
	"github.com/greyledger/offline-sync/internal/models"
	"github.com/greyledger/offline-sync/internal/remote"
	"github.com/greyledger/offline-sync/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *remote.Mock, *store.EncryptedStore, []byte) {
	t.Helper()

	backend, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	keys := crypto.NewKeyService("ledger-test-salt")
	key := keys.DeriveKey("pw")
	stored := store.New(backend, keys)

	mock := remote.NewMock()
	return New(stored, mock, key), mock, stored, key
}

func baseAccounts() []models.Account {
	return []models.Account{
		{ID: "A", Balance: decimal.NewFromInt(500), Currency: "USD", IsActive: true},
		{ID: "B", Balance: decimal.NewFromInt(200), Currency: "USD", IsActive: true},
	}
}

func transfer(from, to string, amount int64) models.Transaction {
	return models.Transaction{
		Kind:          "TRANSFER",
		Amount:        decimal.NewFromInt(amount),
		Currency:      "USD",
		FromAccountID: from,
		ToAccountID:   to,
	}
}

func seedBase(t *testing.T, l *Ledger, mock *remote.Mock, accounts []models.Account) {
	t.Helper()
	mock.Accounts = accounts
	require.NoError(t, l.RefreshBaseState(context.Background()))
}

func TestStage_AssignsIDAndPersists(t *testing.T) {
	l, _, stored, key := newTestLedger(t)
	ctx := context.Background()

	tx, err := l.Stage(ctx, transfer("A", "B", 100))
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)
	assert.False(t, tx.CreatedAt.IsZero())

	// The staged slot was written.
	raw, ok, err := stored.Load(ctx, store.SlotStagedQueue, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, raw, tx.ID)
}

func TestProject_TransferScenario(t *testing.T) {
	l, mock, _, _ := newTestLedger(t)
	seedBase(t, l, mock, baseAccounts())

	_, err := l.Stage(context.Background(), transfer("A", "B", 100))
	require.NoError(t, err)

	projected := l.Project()
	require.Len(t, projected, 2)
	assert.Equal(t, "400", projected[0].Balance.String())
	assert.Equal(t, "300", projected[1].Balance.String())

	// Base state untouched.
	base := l.Accounts()
	assert.Equal(t, "500", base[0].Balance.String())
	assert.Equal(t, "200", base[1].Balance.String())
}

func TestProject_EqualsIterativeFold(t *testing.T) {
	l, mock, _, _ := newTestLedger(t)
	seedBase(t, l, mock, baseAccounts())
	ctx := context.Background()

	txs := []models.Transaction{
		transfer("A", "B", 100),
		transfer("B", "A", 30),
		{Kind: "DEBIT", Amount: decimal.NewFromInt(20), AccountID: "A"},
		{Kind: "CREDIT", Amount: decimal.NewFromInt(5), AccountID: "B"},
	}
	for _, tx := range txs {
		_, err := l.Stage(ctx, tx)
		require.NoError(t, err)
	}

	// Fold manually over the base snapshot.
	want := baseAccounts()
	for _, tx := range l.StagedTransactions() {
		want = applyEffect(want, tx)
	}

	got := l.Project()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Balance.Equal(got[i].Balance),
			"account %s: want %s got %s", want[i].ID, want[i].Balance, got[i].Balance)
	}
}

func TestProject_DebitCreditSingleAccount(t *testing.T) {
	l, mock, _, _ := newTestLedger(t)
	seedBase(t, l, mock, baseAccounts())
	ctx := context.Background()

	_, err := l.Stage(ctx, models.Transaction{Kind: "debit", Amount: decimal.NewFromInt(50), AccountID: "A"})
	require.NoError(t, err)
	_, err = l.Stage(ctx, models.Transaction{Kind: "credit", Amount: decimal.NewFromInt(25), AccountID: "B"})
	require.NoError(t, err)

	projected := l.Project()
	assert.Equal(t, "450", projected[0].Balance.String())
	assert.Equal(t, "225", projected[1].Balance.String())
}

func TestProject_CreateAccountAppendsPending(t *testing.T) {
	l, mock, _, _ := newTestLedger(t)
	seedBase(t, l, mock, baseAccounts())

	tx, err := l.Stage(context.Background(), models.Transaction{
		Kind:           "CREATE_ACCOUNT",
		AccountType:    "savings",
		Currency:       "EUR",
		InitialBalance: decimal.NewFromInt(75),
	})
	require.NoError(t, err)

	projected := l.Project()
	require.Len(t, projected, 3)
	pending := projected[2]
	assert.Equal(t, "pending_"+tx.ID, pending.ID)
	assert.True(t, pending.Pending)
	assert.Equal(t, "PENDING", pending.AccountNumber)
	assert.Equal(t, "75", pending.Balance.String())
	assert.Equal(t, "EUR", pending.Currency)
}

func TestProject_UnknownKindIsEffectFree(t *testing.T) {
	l, mock, _, _ := newTestLedger(t)
	seedBase(t, l, mock, baseAccounts())

	_, err := l.Stage(context.Background(), models.Transaction{
		Kind:      "SCHEDULED_SWEEP",
		Amount:    decimal.NewFromInt(999),
		AccountID: "A",
	})
	require.NoError(t, err)

	projected := l.Project()
	assert.Equal(t, "500", projected[0].Balance.String())
	assert.Equal(t, "200", projected[1].Balance.String())
}

func TestTotals_PendingExcludedFromAuthoritative(t *testing.T) {
	l, mock, _, _ := newTestLedger(t)
	seedBase(t, l, mock, baseAccounts())

	_, err := l.Stage(context.Background(), models.Transaction{
		Kind:           "CREATE_ACCOUNT",
		AccountType:    "savings",
		Currency:       "USD",
		InitialBalance: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	assert.Equal(t, "700", l.TotalBalance().String())
	assert.Equal(t, "800", l.ProjectedTotalBalance().String())
}

func TestCommit_Atomicity(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := l.Stage(ctx, transfer("A", "B", 10))
	require.NoError(t, err)
	second, err := l.Stage(ctx, transfer("B", "A", 20))
	require.NoError(t, err)

	moved, err := l.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	assert.Empty(t, l.StagedTransactions())
	committed := l.CommittedTransactions()
	require.Len(t, committed, 2)
	assert.Equal(t, first.ID, committed[0].ID)
	assert.Equal(t, second.ID, committed[1].ID)
}

// faultyBackend wraps a Backend and fails Put for one slot.
type faultyBackend struct {
	store.Backend
	failSlot string
}

func (b *faultyBackend) Put(ctx context.Context, slot, blob string) error {
	if slot == b.failSlot {
		return errors.New("disk full")
	}
	return b.Backend.Put(ctx, slot, blob)
}

func TestCommit_WritesCommittedSlotBeforeStaged(t *testing.T) {
	backend, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	keys := crypto.NewKeyService("ledger-test-salt")
	key := keys.DeriveKey("pw")
	faulty := &faultyBackend{Backend: backend}
	stored := store.New(faulty, keys)

	l := New(stored, remote.NewMock(), key)
	ctx := context.Background()

	tx, err := l.Stage(ctx, transfer("A", "B", 10))
	require.NoError(t, err)

	// A commit interrupted after its first write must already have the
	// moved transaction in the committed slot, so a reload re-sends it
	// instead of losing it.
	faulty.failSlot = store.SlotStagedQueue
	_, err = l.Commit(ctx)
	require.Error(t, err)

	raw, ok, err := stored.Load(ctx, store.SlotCommittedQueue, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, tx.ID)

	// In-memory state rolled back; nothing moved from the caller's view.
	require.Len(t, l.StagedTransactions(), 1)
	assert.Empty(t, l.CommittedTransactions())
}

func TestCommit_AppendsToTailPreservingOrder(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()

	early, err := l.Stage(ctx, transfer("A", "B", 1))
	require.NoError(t, err)
	_, err = l.Commit(ctx)
	require.NoError(t, err)

	late, err := l.Stage(ctx, transfer("B", "A", 2))
	require.NoError(t, err)
	_, err = l.Commit(ctx)
	require.NoError(t, err)

	committed := l.CommittedTransactions()
	require.Len(t, committed, 2)
	assert.Equal(t, early.ID, committed[0].ID)
	assert.Equal(t, late.ID, committed[1].ID)
}

func TestCommit_EmptyStagedIsNoOp(t *testing.T) {
	l, _, _, _ := newTestLedger(t)

	moved, err := l.Commit(context.Background())
	require.NoError(t, err)
	assert.Zero(t, moved)
}

func TestDiscard_ClearsStagedOnly(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Stage(ctx, transfer("A", "B", 10))
	require.NoError(t, err)
	_, err = l.Commit(ctx)
	require.NoError(t, err)

	_, err = l.Stage(ctx, transfer("B", "A", 20))
	require.NoError(t, err)

	require.NoError(t, l.Discard(ctx))
	assert.Empty(t, l.StagedTransactions())
	assert.Len(t, l.CommittedTransactions(), 1)
}

func TestConfirmHead_PopsOnlyMatchingHead(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := l.Stage(ctx, transfer("A", "B", 10))
	require.NoError(t, err)
	second, err := l.Stage(ctx, transfer("B", "A", 20))
	require.NoError(t, err)
	_, err = l.Commit(ctx)
	require.NoError(t, err)

	// Confirming a non-head id must not touch the queue.
	err = l.ConfirmHead(ctx, second.ID)
	assert.ErrorIs(t, err, ErrHeadMismatch)
	assert.Len(t, l.CommittedTransactions(), 2)

	require.NoError(t, l.ConfirmHead(ctx, first.ID))
	committed := l.CommittedTransactions()
	require.Len(t, committed, 1)
	assert.Equal(t, second.ID, committed[0].ID)
}

func TestRestore_RoundTripsThroughStore(t *testing.T) {
	l, mock, stored, key := newTestLedger(t)
	ctx := context.Background()
	seedBase(t, l, mock, baseAccounts())

	staged, err := l.Stage(ctx, transfer("A", "B", 10))
	require.NoError(t, err)
	_, err = l.Commit(ctx)
	require.NoError(t, err)
	queued, err := l.Stage(ctx, transfer("B", "A", 5))
	require.NoError(t, err)

	// A fresh ledger over the same store sees the identical state.
	values, err := stored.LoadAll(ctx, key)
	require.NoError(t, err)

	restored := New(stored, mock, key)
	_, err = restored.Restore(values)
	require.NoError(t, err)

	gotStaged := restored.StagedTransactions()
	require.Len(t, gotStaged, 1)
	assert.Equal(t, queued.ID, gotStaged[0].ID)

	gotCommitted := restored.CommittedTransactions()
	require.Len(t, gotCommitted, 1)
	assert.Equal(t, staged.ID, gotCommitted[0].ID)

	accounts := restored.Accounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, "500", accounts[0].Balance.String())
}

func TestRefreshBaseState_ReplacesSnapshot(t *testing.T) {
	l, mock, _, _ := newTestLedger(t)
	seedBase(t, l, mock, baseAccounts())

	mock.Accounts = []models.Account{
		{ID: "A", Balance: decimal.NewFromInt(450), Currency: "USD"},
	}
	require.NoError(t, l.RefreshBaseState(context.Background()))

	accounts := l.Accounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "450", accounts[0].Balance.String())
	assert.False(t, l.LastUpdated().IsZero())
}
