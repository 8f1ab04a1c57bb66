package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"
)

// TokenTTLs configures per-purpose token lifetimes.
type TokenTTLs struct {
	Activation time.Duration
	Reset      time.Duration
}

// TokenService issues and consumes single-use action tokens. Raw values are
// returned exactly once; storage holds only SHA-256 verifiers.
type TokenService struct {
	repo Repository
	ttls TokenTTLs
	now  func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(repo Repository, ttls TokenTTLs) *TokenService {
	if ttls.Activation <= 0 {
		ttls.Activation = 72 * time.Hour
	}
	if ttls.Reset <= 0 {
		ttls.Reset = 2 * time.Hour
	}
	return &TokenService{repo: repo, ttls: ttls, now: time.Now}
}

// Issue generates a fresh token for the account and purpose. Any outstanding
// unconsumed token of the same pair stops verifying.
func (s *TokenService) Issue(ctx context.Context, accountID int64, purpose TokenPurpose) (string, error) {
	raw, err := generateTokenValue()
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	token := ActionToken{
		AccountID: accountID,
		TokenHash: HashToken(raw),
		Purpose:   purpose,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl(purpose)),
	}
	if err := s.repo.ReplaceToken(ctx, token); err != nil {
		return "", err
	}
	return raw, nil
}

// Consume verifies the raw token and marks it used, returning the bound
// account id. Absent, expired and already-consumed tokens all fail with
// shared.ErrTokenInvalid; concurrent consumers of the same token get exactly
// one success between them.
func (s *TokenService) Consume(ctx context.Context, raw string, purpose TokenPurpose) (int64, error) {
	return s.repo.ConsumeToken(ctx, HashToken(raw), purpose, s.now())
}

// SweepExpired purges tokens past their expiry. Safe to run repeatedly and
// concurrently with request handling; expiry is enforced at consume time
// regardless of sweep lag.
func (s *TokenService) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredTokens(ctx, s.now())
}

func (s *TokenService) ttl(purpose TokenPurpose) time.Duration {
	if purpose == PurposeResetPassword {
		return s.ttls.Reset
	}
	return s.ttls.Activation
}

// HashToken derives the stored verifier for a raw token value.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateTokenValue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
