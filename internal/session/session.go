package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/greyledger/offline-sync/internal/crypto"
	"github.com/greyledger/offline-sync/internal/ledger"
	"github.com/greyledger/offline-sync/internal/mfa"
	"github.com/greyledger/offline-sync/internal/models"
	"github.com/greyledger/offline-sync/internal/observability"
	"github.com/greyledger/offline-sync/internal/remote"
	"github.com/greyledger/offline-sync/internal/store"
	"github.com/greyledger/offline-sync/internal/worker"
	"go.uber.org/zap"
)

// ErrNotInitialized is returned when an operation runs before a
// successful Initialize.
var ErrNotInitialized = errors.New("session not initialized")

// Session owns the in-memory key and the components built on top of it.
// One session exists per login; losing it (restart) loses only in-memory
// state, since the queues are persisted encrypted and are rebuilt by the
// next Initialize.
type Session struct {
	keys   *crypto.KeyService
	stored *store.EncryptedStore
	remote remote.Ledger
	probe  worker.Connectivity

	mu     sync.Mutex
	key    []byte
	ledger *ledger.Ledger
	gate   *mfa.Gate
	worker *worker.SyncWorker
}

func New(keys *crypto.KeyService, stored *store.EncryptedStore, rem remote.Ledger, probe worker.Connectivity) *Session {
	return &Session{keys: keys, stored: stored, remote: rem, probe: probe}
}

// Initialize derives the session key from the password, loads the
// encrypted slots and pulls base state. A decryption failure on any slot
// clears every slot, since the store is either fully trusted or not at
// all, and the initialization fails so the caller can retry with a
// corrected password. Derivation or fetch failures abort startup; there
// is no automatic retry.
func (s *Session) Initialize(ctx context.Context, password string) error {
	key := s.keys.DeriveKey(password)

	led := ledger.New(s.stored, s.remote, key)
	gate := mfa.NewGate(led)

	values, err := s.stored.LoadAll(ctx, key)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			observability.IncrementDecryptFailure()
			zap.L().Warn("encrypted store failed to decrypt, clearing all slots")
			if clearErr := s.stored.ClearAll(ctx); clearErr != nil {
				zap.L().Error("failed to clear encrypted store", zap.Error(clearErr))
			}
		}
		return fmt.Errorf("load encrypted state: %w", err)
	}

	token, err := led.Restore(values)
	if err != nil {
		return fmt.Errorf("restore ledger state: %w", err)
	}
	if token != nil {
		if err := gate.Restore(ctx, *token); err != nil {
			return fmt.Errorf("restore mfa token: %w", err)
		}
	}

	if err := led.RefreshBaseState(ctx); err != nil {
		return fmt.Errorf("initial base state fetch: %w", err)
	}

	w := worker.NewSyncWorker(led, gate, s.remote, s.probe)

	s.mu.Lock()
	s.key = key
	s.ledger = led
	s.gate = gate
	s.worker = w
	s.mu.Unlock()

	staged, committed := led.QueueDepths()
	zap.L().Info("session initialized",
		zap.Int("staged", staged),
		zap.Int("committed", committed),
		zap.Bool("mfa_token_restored", gate.Valid()),
	)

	// Resume any drain interrupted by the previous shutdown.
	w.Trigger()
	return nil
}

// Stage appends a transaction to the staged queue.
func (s *Session) Stage(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	led, _, _, err := s.components()
	if err != nil {
		return models.Transaction{}, err
	}
	return led.Stage(ctx, tx)
}

// Discard drops the staged queue.
func (s *Session) Discard(ctx context.Context) error {
	led, _, _, err := s.components()
	if err != nil {
		return err
	}
	return led.Discard(ctx)
}

// CommitAndAuthorizeStagedChanges is the entry point invoked after an
// external step-up verification succeeds. It stores the fresh token,
// atomically moves the staged queue to the committed queue and wakes the
// sync worker.
func (s *Session) CommitAndAuthorizeStagedChanges(ctx context.Context, token string, expiry time.Time) (int, error) {
	led, gate, w, err := s.components()
	if err != nil {
		return 0, err
	}

	if err := gate.Set(ctx, token, expiry); err != nil {
		return 0, fmt.Errorf("store mfa token: %w", err)
	}
	if !gate.Valid() {
		return 0, mfa.ErrAuthorizationRequired
	}
	w.ClearAuthRequired()

	moved, err := led.Commit(ctx)
	if err != nil {
		return 0, err
	}

	w.Trigger()
	return moved, nil
}

// CreateAccountNow performs a synchronous, token-gated account creation
// against the remote. Validation failures surface directly; nothing is
// queued or retried.
func (s *Session) CreateAccountNow(ctx context.Context, req remote.CreateAccountRequest) (*models.Account, error) {
	led, gate, _, err := s.components()
	if err != nil {
		return nil, err
	}

	token, ok := gate.Token()
	if !ok {
		return nil, mfa.ErrAuthorizationRequired
	}

	account, err := s.remote.CreateAccount(ctx, token, req)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			if invErr := gate.Invalidate(ctx); invErr != nil {
				zap.L().Warn("failed to invalidate mfa token", zap.Error(invErr))
			}
			return nil, mfa.ErrAuthorizationRequired
		}
		return nil, err
	}

	if err := led.RefreshBaseState(ctx); err != nil {
		zap.L().Warn("base state refresh after account creation failed", zap.Error(err))
	}
	return account, nil
}

// SubmitTransactionNow performs a synchronous, token-gated submission of
// a single transaction, bypassing the queues.
func (s *Session) SubmitTransactionNow(ctx context.Context, tx models.Transaction) error {
	led, gate, _, err := s.components()
	if err != nil {
		return err
	}

	token, ok := gate.Token()
	if !ok {
		return mfa.ErrAuthorizationRequired
	}

	if err := s.remote.SubmitTransaction(ctx, token, tx); err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			if invErr := gate.Invalidate(ctx); invErr != nil {
				zap.L().Warn("failed to invalidate mfa token", zap.Error(invErr))
			}
			return mfa.ErrAuthorizationRequired
		}
		return err
	}

	if err := led.RefreshBaseState(ctx); err != nil {
		zap.L().Warn("base state refresh after submission failed", zap.Error(err))
	}
	return nil
}

// Ledger exposes the ledger for read paths; nil before initialization.
func (s *Session) Ledger() *ledger.Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger
}

// Worker exposes the sync worker; nil before initialization.
func (s *Session) Worker() *worker.SyncWorker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worker
}

// Sync triggers a drain. Manual "sync now" and reconnect signals both
// land here.
func (s *Session) Sync() error {
	_, _, w, err := s.components()
	if err != nil {
		return err
	}
	w.Trigger()
	return nil
}

// Initialized reports whether a key is held.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key != nil
}

// Close zeroizes the session key and drops in-memory state. Persisted
// slots survive so the next Initialize resumes where this one stopped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.key {
		s.key[i] = 0
	}
	s.key = nil
	s.ledger = nil
	s.gate = nil
	s.worker = nil
}

func (s *Session) components() (*ledger.Ledger, *mfa.Gate, *worker.SyncWorker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, nil, nil, ErrNotInitialized
	}
	return s.ledger, s.gate, s.worker, nil
}
