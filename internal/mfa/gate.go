package mfa

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/greyledger/offline-sync/internal/models"
	"go.uber.org/zap"
)

// ErrAuthorizationRequired signals that an operation needs a fresh
// step-up verification before it can proceed.
var ErrAuthorizationRequired = errors.New("authorization required: step-up verification needed")

// Persister writes the token slot. The gate owns the persisted copy of
// the credential so a 401 can clear both memory and storage in one place.
type Persister interface {
	SaveToken(ctx context.Context, token models.MfaToken) error
	ClearToken(ctx context.Context) error
}

// Gate tracks the current step-up authorization token and its expiry.
// It is consulted at commit time and again immediately before each
// individual upload, since the queue can take longer to drain than the
// token lives.
type Gate struct {
	mu      sync.Mutex
	token   string
	expiry  time.Time
	persist Persister
}

func NewGate(persist Persister) *Gate {
	return &Gate{persist: persist}
}

// Set stores a fresh token. A zero expiry is filled from the token's own
// `exp` claim when the credential is a JWT. The signature is not checked
// here; the remote ledger is the authority on token validity, and the
// local expiry only decides when to stop trying.
func (g *Gate) Set(ctx context.Context, token string, expiry time.Time) error {
	if expiry.IsZero() {
		if exp, ok := jwtExpiry(token); ok {
			expiry = exp
		}
	}

	g.mu.Lock()
	g.token = token
	g.expiry = expiry
	g.mu.Unlock()

	if g.persist == nil {
		return nil
	}
	return g.persist.SaveToken(ctx, models.MfaToken{Token: token, Expiry: expiry})
}

// Restore loads a previously persisted token without re-writing it.
// An already-expired token is discarded instead.
func (g *Gate) Restore(ctx context.Context, token models.MfaToken) error {
	if token.Token == "" || !token.Expiry.After(time.Now()) {
		return g.Invalidate(ctx)
	}
	g.mu.Lock()
	g.token = token.Token
	g.expiry = token.Expiry
	g.mu.Unlock()
	return nil
}

// Valid reports whether a token is present and not yet expired.
func (g *Gate) Valid() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token != "" && g.expiry.After(time.Now())
}

// Token returns the current credential if it is still valid.
func (g *Gate) Token() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token == "" || !g.expiry.After(time.Now()) {
		return "", false
	}
	return g.token, true
}

// Expiry returns the current expiry instant (zero when no token is held).
func (g *Gate) Expiry() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.expiry
}

// Invalidate clears the token and its persisted copy. Called on any 401
// from the remote and on detecting local expiry.
func (g *Gate) Invalidate(ctx context.Context) error {
	g.mu.Lock()
	g.token = ""
	g.expiry = time.Time{}
	g.mu.Unlock()

	if g.persist == nil {
		return nil
	}
	if err := g.persist.ClearToken(ctx); err != nil {
		zap.L().Warn("failed to clear persisted mfa token", zap.Error(err))
		return err
	}
	return nil
}

// jwtExpiry extracts the exp claim from a JWT without verifying it.
func jwtExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
