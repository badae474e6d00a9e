package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/greyledger/offline-sync/internal/models"
	"github.com/greyledger/offline-sync/internal/remote"
	"github.com/greyledger/offline-sync/internal/store"
	"go.uber.org/zap"
)

// ErrHeadMismatch is returned when a confirm targets a transaction that
// is no longer the head of the committed queue.
var ErrHeadMismatch = errors.New("transaction is not the head of the committed queue")

// Ledger owns the server-confirmed base state, the staged queue of
// uncommitted transactions and the committed FIFO queue awaiting upload.
// A transaction belongs to exactly one of the two queues at any time and
// leaves the committed queue only from the head, only after a confirmed
// server acceptance.
type Ledger struct {
	mu     sync.Mutex
	stored *store.EncryptedStore
	remote remote.Ledger
	key    []byte

	base      models.BaseState
	staged    []models.Transaction
	committed []models.Transaction
}

func New(stored *store.EncryptedStore, rem remote.Ledger, key []byte) *Ledger {
	return &Ledger{stored: stored, remote: rem, key: key}
}

// Restore rebuilds in-memory state from decrypted slot payloads, as
// returned by EncryptedStore.LoadAll. The mfa_token slot is returned to
// the caller for the gate; the ledger does not keep it.
func (l *Ledger) Restore(values map[string]string) (*models.MfaToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.staged = nil
	l.committed = nil
	l.base = models.BaseState{}

	if raw, ok := values[store.SlotStagedQueue]; ok {
		if err := json.Unmarshal([]byte(raw), &l.staged); err != nil {
			return nil, fmt.Errorf("parse staged queue: %w", err)
		}
	}
	if raw, ok := values[store.SlotCommittedQueue]; ok {
		if err := json.Unmarshal([]byte(raw), &l.committed); err != nil {
			return nil, fmt.Errorf("parse committed queue: %w", err)
		}
	}
	if raw, ok := values[store.SlotBaseState]; ok {
		if err := json.Unmarshal([]byte(raw), &l.base); err != nil {
			return nil, fmt.Errorf("parse base state: %w", err)
		}
	}

	var token *models.MfaToken
	if raw, ok := values[store.SlotMfaToken]; ok {
		token = &models.MfaToken{}
		if err := json.Unmarshal([]byte(raw), token); err != nil {
			return nil, fmt.Errorf("parse mfa token: %w", err)
		}
	}
	return token, nil
}

// Stage assigns a client id and timestamp, appends the transaction to the
// staged queue and persists it. No network call is made.
func (l *Ledger) Stage(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	tx.ID = uuid.NewString()
	tx.CreatedAt = time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.staged = append(l.staged, tx)
	if err := l.persistStagedLocked(ctx); err != nil {
		// Roll the append back so memory matches storage.
		l.staged = l.staged[:len(l.staged)-1]
		return models.Transaction{}, err
	}

	zap.L().Info("transaction staged",
		zap.String("tx_id", tx.ID),
		zap.String("kind", tx.Kind),
		zap.Int("staged_depth", len(l.staged)),
	)
	return tx, nil
}

// Commit atomically moves the entire staged queue, in order, to the tail
// of the committed queue and persists both. Either the whole staged queue
// moves or none of it does. Token validity is the caller's concern (the
// session checks the gate before invoking this).
func (l *Ledger) Commit(ctx context.Context) (moved int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.staged) == 0 {
		return 0, nil
	}

	prevStaged, prevCommitted := l.staged, l.committed
	l.committed = append(append([]models.Transaction{}, l.committed...), l.staged...)
	l.staged = nil

	if err := l.persistQueuesLocked(ctx); err != nil {
		l.staged, l.committed = prevStaged, prevCommitted
		return 0, err
	}

	moved = len(l.committed) - len(prevCommitted)
	zap.L().Info("staged queue committed",
		zap.Int("moved", moved),
		zap.Int("committed_depth", len(l.committed)),
	)
	return moved, nil
}

// Discard clears the staged queue only; the committed queue and base
// state are untouched.
func (l *Ledger) Discard(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.staged = nil
	return l.persistStagedLocked(ctx)
}

// RefreshBaseState replaces base state with the remote's authoritative
// snapshot and persists it. Runs at session init and after every
// successful upload.
func (l *Ledger) RefreshBaseState(ctx context.Context) error {
	accounts, err := l.remote.FetchAccounts(ctx)
	if err != nil {
		return fmt.Errorf("refresh base state: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.base = models.BaseState{Accounts: accounts, LastUpdated: time.Now().UTC()}
	return l.persistBaseLocked(ctx)
}

// AccountTransactions proxies the remote's per-account history.
func (l *Ledger) AccountTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	return l.remote.FetchTransactions(ctx, accountID)
}

// PeekCommitted returns the head of the committed queue without removing it.
func (l *Ledger) PeekCommitted() (models.Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.committed) == 0 {
		return models.Transaction{}, false
	}
	return l.committed[0], true
}

// ConfirmHead removes the head of the committed queue after the remote
// confirmed acceptance of exactly that transaction, then persists the
// queue. A mismatched id leaves the queue untouched.
func (l *Ledger) ConfirmHead(ctx context.Context, txID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.committed) == 0 || l.committed[0].ID != txID {
		return ErrHeadMismatch
	}

	prev := l.committed
	l.committed = append([]models.Transaction{}, l.committed[1:]...)
	if err := l.persistCommittedLocked(ctx); err != nil {
		l.committed = prev
		return err
	}
	return nil
}

// Accounts returns a copy of the server-confirmed accounts.
func (l *Ledger) Accounts() []models.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Account{}, l.base.Accounts...)
}

// LastUpdated reports when base state was last refreshed.
func (l *Ledger) LastUpdated() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.base.LastUpdated
}

// StagedTransactions returns a copy of the staged queue in insertion order.
func (l *Ledger) StagedTransactions() []models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Transaction{}, l.staged...)
}

// CommittedTransactions returns a copy of the committed queue in FIFO order.
func (l *Ledger) CommittedTransactions() []models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Transaction{}, l.committed...)
}

// QueueDepths reports the current staged and committed queue lengths.
func (l *Ledger) QueueDepths() (staged, committed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.staged), len(l.committed)
}

// SaveToken persists the step-up credential into its slot. Implements
// mfa.Persister.
func (l *Ledger) SaveToken(ctx context.Context, token models.MfaToken) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal mfa token: %w", err)
	}
	return l.stored.Save(ctx, store.SlotMfaToken, string(payload), l.key)
}

// ClearToken removes the persisted credential. Implements mfa.Persister.
func (l *Ledger) ClearToken(ctx context.Context) error {
	return l.stored.Clear(ctx, store.SlotMfaToken)
}

// persistQueuesLocked writes the committed slot before the staged slot.
// A crash between the two writes then leaves the moved transactions in
// both slots on disk (re-sent, at-least-once) rather than in neither.
func (l *Ledger) persistQueuesLocked(ctx context.Context) error {
	if err := l.persistCommittedLocked(ctx); err != nil {
		return err
	}
	return l.persistStagedLocked(ctx)
}

func (l *Ledger) persistStagedLocked(ctx context.Context) error {
	return l.persistQueueLocked(ctx, store.SlotStagedQueue, l.staged)
}

func (l *Ledger) persistCommittedLocked(ctx context.Context) error {
	return l.persistQueueLocked(ctx, store.SlotCommittedQueue, l.committed)
}

func (l *Ledger) persistQueueLocked(ctx context.Context, slot string, queue []models.Transaction) error {
	if queue == nil {
		queue = []models.Transaction{}
	}
	payload, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", slot, err)
	}
	return l.stored.Save(ctx, slot, string(payload), l.key)
}

func (l *Ledger) persistBaseLocked(ctx context.Context) error {
	payload, err := json.Marshal(l.base)
	if err != nil {
		return fmt.Errorf("marshal base state: %w", err)
	}
	return l.stored.Save(ctx, store.SlotBaseState, string(payload), l.key)
}
