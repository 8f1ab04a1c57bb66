package shared_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/byfaith/byfaith/internal/shared"
	_ "github.com/byfaith/byfaith/testing"
)

func newCSRFFixture(t *testing.T) (*shared.CSRFManager, *shared.Session) {
	t.Helper()
	sm := newSessionManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	csrf := shared.NewCSRFManager("csrfsecret", shared.CookiePolicy{SameSite: http.SameSiteLaxMode})
	return csrf, sess
}

func TestCSRFEnsureTokenIsStable(t *testing.T) {
	csrf, sess := newCSRFFixture(t)
	ctx := context.Background()

	first, err := csrf.EnsureToken(ctx, sess)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if first == "" {
		t.Fatalf("expected a token")
	}
	second, err := csrf.EnsureToken(ctx, sess)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if first != second {
		t.Fatalf("token changed between calls: %q vs %q", first, second)
	}
	if sess.Get(shared.CSRFSessionKey) != first {
		t.Fatalf("token not stored in session")
	}
}

func TestCSRFRotateMintsNewToken(t *testing.T) {
	csrf, sess := newCSRFFixture(t)
	ctx := context.Background()

	first, err := csrf.EnsureToken(ctx, sess)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	rotated, err := csrf.Rotate(ctx, sess)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated == first {
		t.Fatalf("rotate returned the old token")
	}
	if err := csrf.VerifyToken(ctx, sess, first); !errors.Is(err, shared.ErrCSRFTokenMismatch) {
		t.Fatalf("expected old token rejected, got %v", err)
	}
	if err := csrf.VerifyToken(ctx, sess, rotated); err != nil {
		t.Fatalf("expected rotated token accepted, got %v", err)
	}
}

func TestCSRFVerifyRequest(t *testing.T) {
	csrf, sess := newCSRFFixture(t)
	ctx := context.Background()

	token, err := csrf.EnsureToken(ctx, sess)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/login/", nil)
	if err := csrf.VerifyRequest(ctx, sess, req); !errors.Is(err, shared.ErrCSRFTokenMissing) {
		t.Fatalf("expected missing header rejected, got %v", err)
	}

	req.Header.Set(shared.CSRFHeaderName, "tampered")
	if err := csrf.VerifyRequest(ctx, sess, req); !errors.Is(err, shared.ErrCSRFTokenMismatch) {
		t.Fatalf("expected tampered header rejected, got %v", err)
	}

	req.Header.Set(shared.CSRFHeaderName, token)
	if err := csrf.VerifyRequest(ctx, sess, req); err != nil {
		t.Fatalf("expected matching header accepted, got %v", err)
	}
}

func TestCSRFVerifyWithoutSessionToken(t *testing.T) {
	csrf, sess := newCSRFFixture(t)
	ctx := context.Background()

	if err := csrf.VerifyToken(ctx, sess, "anything"); !errors.Is(err, shared.ErrCSRFTokenMissing) {
		t.Fatalf("expected missing session token rejected, got %v", err)
	}
	if err := csrf.VerifyToken(ctx, nil, "anything"); !errors.Is(err, shared.ErrCSRFTokenMissing) {
		t.Fatalf("expected nil session rejected, got %v", err)
	}
}

func TestCSRFWriteCookieIsReadable(t *testing.T) {
	csrf, sess := newCSRFFixture(t)

	token, err := csrf.EnsureToken(context.Background(), sess)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	res := httptest.NewRecorder()
	csrf.WriteCookie(res, token)

	cookies := res.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != shared.CSRFCookieName || c.Value != token {
		t.Fatalf("unexpected cookie %q=%q", c.Name, c.Value)
	}
	if c.HttpOnly {
		t.Fatalf("csrf cookie must be readable by the frontend")
	}
}
