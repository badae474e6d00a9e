package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/greyledger/offline-sync/internal/domain"
	"github.com/greyledger/offline-sync/internal/ledger"
	"github.com/greyledger/offline-sync/internal/mfa"
	"github.com/greyledger/offline-sync/internal/models"
	"github.com/greyledger/offline-sync/internal/observability"
	"github.com/greyledger/offline-sync/internal/remote"
	"go.uber.org/zap"
)

// Connectivity answers whether the remote ledger is reachable.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Connectivity interface.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Online(ctx context.Context) bool { return f(ctx) }

// AlwaysOnline is the default probe.
var AlwaysOnline = ProbeFunc(func(context.Context) bool { return true })

// Status is a snapshot of the worker for the control API.
type Status struct {
	State          string    `json:"state"`
	AuthRequired   bool      `json:"auth_required"`
	LastError      string    `json:"last_error,omitempty"`
	StagedDepth    int       `json:"staged_depth"`
	CommittedDepth int       `json:"committed_depth"`
	LastSyncedAt   time.Time `json:"last_synced_at,omitzero"`
}

// SyncWorker drains the committed queue against the remote ledger, one
// transaction in flight at a time. Uploads are at-least-once and strictly
// ordered: the head leaves the queue only after the remote confirmed that
// exact item.
type SyncWorker struct {
	ledger *ledger.Ledger
	gate   *mfa.Gate
	remote remote.Ledger
	probe  Connectivity

	// Single-flight guard: one logical drain loop at a time. A trigger
	// landing while a drain is active raises wakeup, which the active
	// drain consumes after releasing the guard.
	running atomic.Bool
	wakeup  atomic.Bool

	mu           sync.Mutex
	state        string
	authRequired bool
	lastError    string
	lastSyncedAt time.Time
}

func NewSyncWorker(l *ledger.Ledger, gate *mfa.Gate, rem remote.Ledger, probe Connectivity) *SyncWorker {
	if probe == nil {
		probe = AlwaysOnline
	}
	return &SyncWorker{
		ledger: l,
		gate:   gate,
		remote: rem,
		probe:  probe,
		state:  domain.SyncIdle,
	}
}

// Trigger wakes the worker in the background. Safe to call from anywhere:
// a commit, a reconnect event and a manual "sync now" all land here.
func (w *SyncWorker) Trigger() {
	go w.Drain(context.Background())
}

// Drain runs the state machine until it reaches a stopping state. It is
// the explicit-loop form of the tick logic, one head-of-queue upload per
// iteration. Every call leaves a wakeup mark before attempting the
// guard, so a drain requested while another is finishing is picked up by
// that drain instead of being dropped.
func (w *SyncWorker) Drain(ctx context.Context) {
	w.wakeup.Store(true)
	for w.wakeup.Load() {
		if !w.running.CompareAndSwap(false, true) {
			// The active drain re-checks wakeup after releasing the
			// guard; nothing to do here.
			return
		}
		w.wakeup.Store(false)

		w.loop(ctx)
		observability.IncrementWorkerRun(w.State())
		w.publishDepths()
		w.running.Store(false)
	}
}

func (w *SyncWorker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			w.setState(domain.SyncIdle)
			return
		}

		// 1. Connectivity gate: resumed by the reconnect signal.
		if !w.probe.Online(ctx) {
			w.setState(domain.SyncWaitingForNetwork)
			zap.L().Info("sync worker offline, waiting for network")
			return
		}

		// 2. Nothing to do.
		head, ok := w.ledger.PeekCommitted()
		if !ok {
			w.finishIdle()
			return
		}

		// 3. Authorization gate: the token must be valid now, not just at
		// commit time. Resumed only by a commit supplying a fresh token.
		token, valid := w.gate.Token()
		if !valid {
			if err := w.gate.Invalidate(ctx); err != nil {
				zap.L().Warn("failed to invalidate mfa token", zap.Error(err))
			}
			w.requireAuth("step-up verification required to sync changes")
			return
		}

		// 4. One upload in flight.
		w.setState(domain.SyncDraining)
		w.clearError()

		err := w.upload(ctx, token, head)
		switch {
		case err == nil:
			if err := w.confirm(ctx, head); err != nil {
				return
			}
			// Loop: process the next item, or land in Idle when empty.

		case errors.Is(err, remote.ErrUnauthorized):
			observability.IncrementUpload(head.Kind, "unauthorized")
			if err := w.gate.Invalidate(ctx); err != nil {
				zap.L().Warn("failed to invalidate mfa token", zap.Error(err))
			}
			w.requireAuth(fmt.Sprintf("sync failed: authorization rejected for transaction %s", head.ID))
			zap.L().Warn("upload unauthorized, token cleared", zap.String("tx_id", head.ID))
			return

		default:
			// Transient: retain the head, stop, wait for an external
			// trigger. No automatic timed retry.
			observability.IncrementUpload(head.Kind, "failed")
			w.failIdle(fmt.Sprintf("failed to sync transaction %s: %v", head.ID, err))
			zap.L().Warn("upload failed, transaction retained",
				zap.String("tx_id", head.ID),
				zap.Error(err),
			)
			return
		}
	}
}

// upload submits the head to the endpoint selected by its kind.
func (w *SyncWorker) upload(ctx context.Context, token string, tx models.Transaction) error {
	if domain.NormalizeKind(tx.Kind) == domain.KindCreateAccount {
		_, err := w.remote.CreateAccount(ctx, token, remote.CreateAccountRequest{
			AccountType:    tx.AccountType,
			Currency:       tx.Currency,
			InitialBalance: tx.InitialBalance,
		})
		return err
	}
	return w.remote.SubmitTransaction(ctx, token, tx)
}

// confirm pops the accepted head, persists the queue and pulls fresh base
// state. The pop is keyed on the exact transaction id that was accepted.
func (w *SyncWorker) confirm(ctx context.Context, tx models.Transaction) error {
	if err := w.ledger.ConfirmHead(ctx, tx.ID); err != nil {
		w.failIdle(fmt.Sprintf("failed to persist queue after syncing %s: %v", tx.ID, err))
		zap.L().Error("confirm head failed", zap.String("tx_id", tx.ID), zap.Error(err))
		return err
	}

	observability.IncrementUpload(tx.Kind, "success")
	w.mu.Lock()
	w.lastSyncedAt = time.Now().UTC()
	w.mu.Unlock()
	zap.L().Info("transaction synced", zap.String("tx_id", tx.ID), zap.String("kind", tx.Kind))

	// Pull after push. A refresh failure leaves the queue correct but the
	// snapshot stale; surface it and stop this drain.
	if err := w.ledger.RefreshBaseState(ctx); err != nil {
		w.failIdle(fmt.Sprintf("synced %s but failed to refresh base state: %v", tx.ID, err))
		zap.L().Warn("base state refresh after upload failed", zap.Error(err))
		return err
	}
	return nil
}

// State returns the current worker state.
func (w *SyncWorker) State() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status returns a snapshot for the control API.
func (w *SyncWorker) Status() Status {
	staged, committed := w.ledger.QueueDepths()
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		State:          w.state,
		AuthRequired:   w.authRequired,
		LastError:      w.lastError,
		StagedDepth:    staged,
		CommittedDepth: committed,
		LastSyncedAt:   w.lastSyncedAt,
	}
}

// AuthRequired reports whether the worker is blocked on a fresh token.
func (w *SyncWorker) AuthRequired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.authRequired
}

// LastError returns the most recent sync error message, if any.
func (w *SyncWorker) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

// ClearAuthRequired is called when a fresh token arrives with a commit.
func (w *SyncWorker) ClearAuthRequired() {
	w.mu.Lock()
	w.authRequired = false
	w.mu.Unlock()
}

func (w *SyncWorker) setState(state string) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

func (w *SyncWorker) finishIdle() {
	w.mu.Lock()
	w.state = domain.SyncIdle
	w.lastError = ""
	w.mu.Unlock()
}

func (w *SyncWorker) failIdle(msg string) {
	w.mu.Lock()
	w.state = domain.SyncIdle
	w.lastError = msg
	w.mu.Unlock()
}

func (w *SyncWorker) requireAuth(msg string) {
	w.mu.Lock()
	w.state = domain.SyncWaitingForAuth
	w.authRequired = true
	w.lastError = msg
	w.mu.Unlock()
}

func (w *SyncWorker) clearError() {
	w.mu.Lock()
	w.lastError = ""
	w.mu.Unlock()
}

func (w *SyncWorker) publishDepths() {
	staged, committed := w.ledger.QueueDepths()
	observability.SetQueueDepth("staged", staged)
	observability.SetQueueDepth("committed", committed)
}
