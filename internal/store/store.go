package store

import (
	"context"
	"fmt"

	"github.com/greyledger/offline-sync/internal/crypto"
)

// The four persisted slots. Values are always nonce||ciphertext blobs,
// base64-encoded, produced by crypto.KeyService.
const (
	SlotStagedQueue    = "staged_queue"
	SlotCommittedQueue = "committed_queue"
	SlotBaseState      = "base_state"
	SlotMfaToken       = "mfa_token"
)

// Slots lists every slot in load order.
var Slots = []string{SlotStagedQueue, SlotCommittedQueue, SlotBaseState, SlotMfaToken}

// Backend is the raw blob storage under the encrypted store. Get reports
// absence via ok=false rather than an error.
type Backend interface {
	Get(ctx context.Context, slot string) (blob string, ok bool, err error)
	Put(ctx context.Context, slot, blob string) error
	Delete(ctx context.Context, slot string) error
}

// EncryptedStore persists the four logical slots as encrypted blobs.
type EncryptedStore struct {
	backend Backend
	keys    *crypto.KeyService
}

func New(backend Backend, keys *crypto.KeyService) *EncryptedStore {
	return &EncryptedStore{backend: backend, keys: keys}
}

// Save encrypts value under key and writes it to the slot.
func (s *EncryptedStore) Save(ctx context.Context, slot, value string, key []byte) error {
	blob, err := s.keys.Encrypt(value, key)
	if err != nil {
		return fmt.Errorf("encrypt slot %s: %w", slot, err)
	}
	if err := s.backend.Put(ctx, slot, blob); err != nil {
		return fmt.Errorf("write slot %s: %w", slot, err)
	}
	return nil
}

// Load decrypts a single slot. An absent slot is not an error.
func (s *EncryptedStore) Load(ctx context.Context, slot string, key []byte) (value string, ok bool, err error) {
	blob, ok, err := s.backend.Get(ctx, slot)
	if err != nil {
		return "", false, fmt.Errorf("read slot %s: %w", slot, err)
	}
	if !ok {
		return "", false, nil
	}
	value, err = s.keys.Decrypt(blob, key)
	if err != nil {
		return "", false, fmt.Errorf("slot %s: %w", slot, err)
	}
	return value, true, nil
}

// LoadAll decrypts every present slot. If any one slot fails decryption
// the whole load fails: a store where some slots decrypt and others do
// not cannot be trusted, so the caller must ClearAll rather than keep a
// partial view.
func (s *EncryptedStore) LoadAll(ctx context.Context, key []byte) (map[string]string, error) {
	values := make(map[string]string, len(Slots))
	for _, slot := range Slots {
		value, ok, err := s.Load(ctx, slot, key)
		if err != nil {
			return nil, err
		}
		if ok {
			values[slot] = value
		}
	}
	return values, nil
}

// Clear removes a single slot.
func (s *EncryptedStore) Clear(ctx context.Context, slot string) error {
	if err := s.backend.Delete(ctx, slot); err != nil {
		return fmt.Errorf("clear slot %s: %w", slot, err)
	}
	return nil
}

// ClearAll removes every slot. Used when decryption of any slot fails and
// at logout.
func (s *EncryptedStore) ClearAll(ctx context.Context) error {
	for _, slot := range Slots {
		if err := s.Clear(ctx, slot); err != nil {
			return err
		}
	}
	return nil
}
