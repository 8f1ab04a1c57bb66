package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"net/http"
	"time"
)

const (
	// CSRFSessionKey is the key used to persist tokens in the session store.
	CSRFSessionKey = "csrf_token"
	// CSRFCookieName is the readable cookie carrying the token to the
	// frontend. It is intentionally not HttpOnly: script on an allowed
	// origin reads it and echoes it back, a cross-origin page cannot.
	CSRFCookieName = "csrftoken"
	// CSRFHeaderName is the request header the frontend echoes the token in.
	CSRFHeaderName = "X-CSRF-Token"
)

// CSRFManager issues and verifies double-submit CSRF tokens bound to a session.
type CSRFManager struct {
	secret []byte
	policy CookiePolicy
}

// NewCSRFManager returns a CSRFManager using the provided secret key.
func NewCSRFManager(secret string, policy CookiePolicy) *CSRFManager {
	return &CSRFManager{secret: []byte(secret), policy: policy}
}

// EnsureToken retrieves or generates a CSRF token for the session.
func (m *CSRFManager) EnsureToken(ctx context.Context, sess *Session) (string, error) {
	if sess == nil {
		return "", errors.New("session missing")
	}
	if token := sess.Get(CSRFSessionKey); token != "" {
		return token, nil
	}
	token := m.generateToken(sess.ID)
	sess.Set(CSRFSessionKey, token)
	return token, nil
}

// Rotate discards any token bound to the session and mints a fresh one.
// Used after the session id changes so the token stays session-bound.
func (m *CSRFManager) Rotate(ctx context.Context, sess *Session) (string, error) {
	if sess == nil {
		return "", errors.New("session missing")
	}
	sess.Delete(CSRFSessionKey)
	return m.EnsureToken(ctx, sess)
}

// WriteCookie exposes the token through the readable csrftoken cookie.
func (m *CSRFManager) WriteCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   m.policy.Secure,
		SameSite: m.policy.SameSite,
	})
}

// VerifyRequest checks the header echo of a mutating request against the
// session-bound token.
func (m *CSRFManager) VerifyRequest(ctx context.Context, sess *Session, r *http.Request) error {
	return m.VerifyToken(ctx, sess, r.Header.Get(CSRFHeaderName))
}

// VerifyToken compares the supplied token with the session token.
func (m *CSRFManager) VerifyToken(ctx context.Context, sess *Session, token string) error {
	if sess == nil {
		return ErrCSRFTokenMissing
	}
	expected := sess.Get(CSRFSessionKey)
	if expected == "" {
		return ErrCSRFTokenMissing
	}
	if token == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

func (m *CSRFManager) generateToken(sessionID string) string {
	mac := hmac.New(sha256.New, m.secret)
	_, _ = mac.Write([]byte(sessionID))
	_, _ = mac.Write([]byte{'|'})
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(time.Now().UnixNano()))
	_, _ = mac.Write(buf)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
