package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. The iteration count matches what existing installs
// derived their keys with; changing it orphans every persisted slot.
const (
	iterations = 100_000
	keyLen     = 32
	nonceLen   = 12
)

// ErrDecryptionFailed is returned when a blob fails authentication (wrong
// key or tampered data) or is structurally malformed. Callers must treat
// the persisted store as untrustworthy when they see it.
var ErrDecryptionFailed = errors.New("decryption failed: invalid key or corrupted data")

// KeyService derives session keys from passwords and performs
// authenticated encryption of slot payloads.
type KeyService struct {
	salt []byte
}

// NewKeyService creates a key service using the given derivation salt.
// The salt is fixed per installation; per-account salts are a known
// improvement tracked upstream.
func NewKeyService(salt string) *KeyService {
	return &KeyService{salt: []byte(salt)}
}

// DeriveKey stretches a password into a 256-bit AES key. Deterministic
// for a given password and salt.
func (s *KeyService) DeriveKey(password string) []byte {
	return pbkdf2.Key([]byte(password), s.salt, iterations, keyLen, sha256.New)
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random 12-byte
// nonce and returns base64(nonce || ciphertext || tag). Nonces are never
// reused for the same key.
func (s *KeyService) Encrypt(plaintext string, key []byte) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It fails with ErrDecryptionFailed on a tag
// mismatch or malformed input and never returns unauthenticated
// plaintext.
func (s *KeyService) Decrypt(blob string, key []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(raw) < nonceLen+1 {
		return "", ErrDecryptionFailed
	}

	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	nonce, ciphertext := raw[:nonceLen], raw[nonceLen:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}
