package mfa

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/greyledger/offline-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	saved   []models.MfaToken
	cleared int
}

func (p *recordingPersister) SaveToken(_ context.Context, token models.MfaToken) error {
	p.saved = append(p.saved, token)
	return nil
}

func (p *recordingPersister) ClearToken(context.Context) error {
	p.cleared++
	return nil
}

func TestGate_SetAndValid(t *testing.T) {
	persist := &recordingPersister{}
	gate := NewGate(persist)
	ctx := context.Background()

	require.NoError(t, gate.Set(ctx, "tok-1", time.Now().Add(5*time.Minute)))
	assert.True(t, gate.Valid())

	tok, ok := gate.Token()
	assert.True(t, ok)
	assert.Equal(t, "tok-1", tok)
	require.Len(t, persist.saved, 1)
	assert.Equal(t, "tok-1", persist.saved[0].Token)
}

func TestGate_ExpiredTokenIsInvalid(t *testing.T) {
	gate := NewGate(nil)
	require.NoError(t, gate.Set(context.Background(), "tok-1", time.Now().Add(-time.Second)))

	assert.False(t, gate.Valid())
	_, ok := gate.Token()
	assert.False(t, ok)
}

func TestGate_EmptyGateIsInvalid(t *testing.T) {
	gate := NewGate(nil)
	assert.False(t, gate.Valid())
}

func TestGate_Invalidate(t *testing.T) {
	persist := &recordingPersister{}
	gate := NewGate(persist)
	ctx := context.Background()

	require.NoError(t, gate.Set(ctx, "tok-1", time.Now().Add(time.Hour)))
	require.NoError(t, gate.Invalidate(ctx))

	assert.False(t, gate.Valid())
	assert.Equal(t, 1, persist.cleared)
	assert.True(t, gate.Expiry().IsZero())
}

func TestGate_SetFillsExpiryFromJWT(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte("irrelevant-secret"))
	require.NoError(t, err)

	gate := NewGate(nil)
	require.NoError(t, gate.Set(context.Background(), signed, time.Time{}))

	assert.True(t, gate.Valid())
	assert.WithinDuration(t, exp, gate.Expiry(), time.Second)
}

func TestGate_SetOpaqueTokenWithoutExpiryIsInvalid(t *testing.T) {
	gate := NewGate(nil)
	require.NoError(t, gate.Set(context.Background(), "opaque-token", time.Time{}))
	assert.False(t, gate.Valid())
}

func TestGate_RestoreDiscardsExpired(t *testing.T) {
	persist := &recordingPersister{}
	gate := NewGate(persist)

	err := gate.Restore(context.Background(), models.MfaToken{
		Token:  "stale",
		Expiry: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	assert.False(t, gate.Valid())
	assert.Equal(t, 1, persist.cleared)
}

func TestGate_RestoreKeepsFresh(t *testing.T) {
	gate := NewGate(nil)

	err := gate.Restore(context.Background(), models.MfaToken{
		Token:  "fresh",
		Expiry: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	tok, ok := gate.Token()
	assert.True(t, ok)
	assert.Equal(t, "fresh", tok)
}
