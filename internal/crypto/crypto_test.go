package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSalt = "test-install-salt"

func TestDeriveKey_Deterministic(t *testing.T) {
	svc := NewKeyService(testSalt)

	k1 := svc.DeriveKey("hunter2")
	k2 := svc.DeriveKey("hunter2")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)

	k3 := svc.DeriveKey("hunter3")
	assert.NotEqual(t, k1, k3)
}

func TestDeriveKey_SaltChangesKey(t *testing.T) {
	k1 := NewKeyService("salt-a").DeriveKey("hunter2")
	k2 := NewKeyService("salt-b").DeriveKey("hunter2")
	assert.NotEqual(t, k1, k2)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	svc := NewKeyService(testSalt)
	key := svc.DeriveKey("correct horse battery staple")

	for _, plaintext := range []string{"", "{}", `{"accounts":[]}`, "héllo wörld"} {
		blob, err := svc.Encrypt(plaintext, key)
		require.NoError(t, err)

		got, err := svc.Decrypt(blob, key)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	svc := NewKeyService(testSalt)
	key := svc.DeriveKey("pw")

	b1, err := svc.Encrypt("same message", key)
	require.NoError(t, err)
	b2, err := svc.Encrypt("same message", key)
	require.NoError(t, err)

	assert.NotEqual(t, b1, b2)
}

func TestDecrypt_WrongKey(t *testing.T) {
	svc := NewKeyService(testSalt)
	k1 := svc.DeriveKey("password-one")
	k2 := svc.DeriveKey("password-two")

	blob, err := svc.Encrypt("secret queue", k1)
	require.NoError(t, err)

	_, err = svc.Decrypt(blob, k2)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	svc := NewKeyService(testSalt)
	key := svc.DeriveKey("pw")

	blob, err := svc.Encrypt("secret queue", key)
	require.NoError(t, err)

	tampered := []byte(blob)
	tampered[len(tampered)-5] ^= 'x'

	_, err = svc.Decrypt(string(tampered), key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_MalformedInput(t *testing.T) {
	svc := NewKeyService(testSalt)
	key := svc.DeriveKey("pw")

	for _, blob := range []string{"", "not base64 !!!", "c2hvcnQ="} {
		_, err := svc.Decrypt(blob, key)
		assert.ErrorIs(t, err, ErrDecryptionFailed, "blob %q", blob)
	}
}
