package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/byfaith/byfaith/internal/auth"
	"github.com/byfaith/byfaith/internal/shared"
	_ "github.com/byfaith/byfaith/testing"
)

type stubRepo struct {
	mu      sync.Mutex
	account *auth.Account
	tokens  map[string]*auth.ActionToken
}

func newStubRepo(account *auth.Account) *stubRepo {
	return &stubRepo{account: account, tokens: make(map[string]*auth.ActionToken)}
}

func (s *stubRepo) CreateAccount(ctx context.Context, email, passwordHash string) (*auth.Account, error) {
	return nil, shared.ErrDuplicateAccount
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil || s.account.Email != email {
		return nil, shared.ErrNotFound
	}
	copied := *s.account
	return &copied, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil || s.account.ID != id {
		return nil, shared.ErrNotFound
	}
	copied := *s.account
	return &copied, nil
}

func (s *stubRepo) UpdateState(ctx context.Context, id int64, state auth.AccountState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account != nil && s.account.ID == id {
		s.account.State = state
	}
	return nil
}

func (s *stubRepo) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account != nil && s.account.ID == id {
		s.account.PasswordHash = passwordHash
	}
	return nil
}

func (s *stubRepo) ReplaceToken(ctx context.Context, token auth.ActionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.TokenHash] = &token
	return nil
}

func (s *stubRepo) ConsumeToken(ctx context.Context, tokenHash string, purpose auth.TokenPurpose, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok || t.Purpose != purpose || t.ConsumedAt != nil || !t.ExpiresAt.After(now) {
		return 0, shared.ErrTokenInvalid
	}
	at := now
	t.ConsumedAt = &at
	return t.AccountID, nil
}

func (s *stubRepo) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, rec auth.SessionRecord) error { return nil }
func (s *stubRepo) DeleteSession(ctx context.Context, id string) error              { return nil }
func (s *stubRepo) ListSessions(ctx context.Context, accountID int64) ([]auth.SessionRecord, error) {
	return nil, nil
}
func (s *stubRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// testServer mounts the handler behind a minimal session middleware and keeps
// a handle on the session each request ran with.
type testServer struct {
	router         chi.Router
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager

	mu       sync.Mutex
	lastSess *shared.Session
}

func newTestServer(t *testing.T, repo auth.Repository) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	policy := shared.CookiePolicy{SameSite: http.SameSiteLaxMode}
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, policy)
	csrfManager := shared.NewCSRFManager("csrfsecret", policy)

	service := auth.NewService(
		repo,
		auth.NewTokenService(repo, auth.TokenTTLs{}),
		auth.NewPasswordPolicy(auth.PasswordPolicyConfig{}),
		nil,
		nil,
		auth.ServiceConfig{FrontendBaseURL: "http://localhost:5173"},
	)
	handler := auth.NewHandler(nil, service, sessionManager, csrfManager)

	srv := &testServer{sessionManager: sessionManager, csrfManager: csrfManager}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessionManager.Load(req.Context(), req)
			if err != nil {
				t.Fatalf("load session: %v", err)
			}
			srv.mu.Lock()
			srv.lastSess = sess
			srv.mu.Unlock()
			ctx := shared.ContextWithSession(req.Context(), sess)
			next.ServeHTTP(w, req.WithContext(ctx))
			if err := sessionManager.Commit(ctx, w, req, sess); err != nil {
				t.Fatalf("commit session: %v", err)
			}
		})
	})
	handler.MountRoutes(r)
	srv.router = r
	return srv
}

func (s *testServer) do(method, target, body, sessionID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: s.sessionManager.CookieName(), Value: sessionID})
	}
	res := httptest.NewRecorder()
	s.router.ServeHTTP(res, req)
	return res
}

func (s *testServer) session() *shared.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSess
}

func activeAccount(t *testing.T) *auth.Account {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("Str0ngPass!"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.Account{ID: 1, Email: "alice@example.com", PasswordHash: string(hashed), State: auth.StateActive}
}

func TestCSRFEndpointIssuesToken(t *testing.T) {
	srv := newTestServer(t, newStubRepo(nil))

	res := srv.do(http.MethodGet, "/csrf/", "", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["csrfToken"] == "" {
		t.Fatalf("expected csrfToken in body")
	}
	if got := srv.session().Get(shared.CSRFSessionKey); got != body["csrfToken"] {
		t.Fatalf("body token %q does not match session token %q", body["csrfToken"], got)
	}
}

func TestAuthCheckAnonymous(t *testing.T) {
	srv := newTestServer(t, newStubRepo(nil))

	res := srv.do(http.MethodGet, "/auth-check/", "", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"authenticated":false`) {
		t.Fatalf("expected anonymous auth-check, got %s", res.Body.String())
	}
}

func TestLoginRotatesSessionID(t *testing.T) {
	srv := newTestServer(t, newStubRepo(activeAccount(t)))
	ctx := context.Background()

	// Prime an anonymous session with a CSRF token, as the SPA would.
	srv.do(http.MethodGet, "/csrf/", "", "")
	preSess := srv.session()
	preID := preSess.ID
	preToken := preSess.Get(shared.CSRFSessionKey)

	res := srv.do(http.MethodPost, "/login/", `{"email":"alice@example.com","password":"Str0ngPass!"}`, preID)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Body.String(), `"authenticated":true`) {
		t.Fatalf("expected authenticated response, got %s", res.Body.String())
	}

	postSess := srv.session()
	if postSess.ID == preID {
		t.Fatalf("session id was not rotated on login")
	}
	if postSess.User() != "1" {
		t.Fatalf("expected session bound to account 1, got %q", postSess.User())
	}
	if token := postSess.Get(shared.CSRFSessionKey); token == "" || token == preToken {
		t.Fatalf("expected csrf token rotated with the session")
	}

	// The pre-login id must stop resolving.
	if old, err := srv.sessionManager.Lookup(ctx, preID); err != nil || old != nil {
		t.Fatalf("expected retired session gone, got %v err %v", old, err)
	}
	rotated, err := srv.sessionManager.Lookup(ctx, postSess.ID)
	if err != nil {
		t.Fatalf("lookup rotated session: %v", err)
	}
	if rotated == nil || rotated.User() != "1" {
		t.Fatalf("expected persisted authenticated session")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	srv := newTestServer(t, newStubRepo(activeAccount(t)))

	res := srv.do(http.MethodPost, "/login/", `{"email":"alice@example.com","password":"wrongpass"}`, "")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	account := activeAccount(t)
	account.State = auth.StateDisabled
	srv := newTestServer(t, newStubRepo(account))

	res := srv.do(http.MethodPost, "/login/", `{"email":"alice@example.com","password":"Str0ngPass!"}`, "")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}

func TestLoginValidatesInput(t *testing.T) {
	srv := newTestServer(t, newStubRepo(nil))

	res := srv.do(http.MethodPost, "/login/", `{"email":"not-an-email","password":""}`, "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "violations") {
		t.Fatalf("expected violations in body, got %s", res.Body.String())
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	srv := newTestServer(t, newStubRepo(activeAccount(t)))
	ctx := context.Background()

	srv.do(http.MethodPost, "/login/", `{"email":"alice@example.com","password":"Str0ngPass!"}`, "")
	sessionID := srv.session().ID

	res := srv.do(http.MethodPost, "/logout/", "", sessionID)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if sess, err := srv.sessionManager.Lookup(ctx, sessionID); err != nil || sess != nil {
		t.Fatalf("expected session destroyed, got %v err %v", sess, err)
	}

	// Logged out cookie no longer authenticates.
	check := srv.do(http.MethodGet, "/auth-check/", "", sessionID)
	if !strings.Contains(check.Body.String(), `"authenticated":false`) {
		t.Fatalf("expected anonymous after logout, got %s", check.Body.String())
	}
}

func TestAuthCheckWithSessionCookie(t *testing.T) {
	srv := newTestServer(t, newStubRepo(activeAccount(t)))

	srv.do(http.MethodPost, "/login/", `{"email":"alice@example.com","password":"Str0ngPass!"}`, "")
	sessionID := srv.session().ID

	res := srv.do(http.MethodGet, "/auth-check/", "", sessionID)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, `"authenticated":true`) || !strings.Contains(body, `"alice@example.com"`) {
		t.Fatalf("expected authenticated account payload, got %s", body)
	}
}

func TestActivateInvalidToken(t *testing.T) {
	srv := newTestServer(t, newStubRepo(nil))

	res := srv.do(http.MethodPost, "/activate/bogus/bogus/", "", "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "token is invalid or expired") {
		t.Fatalf("expected opaque token failure, got %s", res.Body.String())
	}
}

func TestPasswordResetAlwaysAccepts(t *testing.T) {
	srv := newTestServer(t, newStubRepo(nil))

	res := srv.do(http.MethodPost, "/password-reset/", `{"email":"ghost@example.com"}`, "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "if the email exists") {
		t.Fatalf("unexpected body: %s", res.Body.String())
	}
}
