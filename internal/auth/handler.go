package auth

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/byfaith/byfaith/internal/platform/httpx"
	"github.com/byfaith/byfaith/internal/shared"
)

// Handler wires the JSON endpoints for authentication flows. It is pure
// orchestration: parse input, call the service, map results to responses.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf/", h.handleCSRF)
	r.Get("/auth-check/", h.handleAuthCheck)
	r.Post("/login/", h.handleLogin)
	r.Post("/logout/", h.handleLogout)
	r.Post("/signup/", h.handleSignup)
	r.Post("/activate/{uid}/{token}/", h.handleActivate)
	r.Post("/password-reset/", h.handlePasswordReset)
	r.Post("/password-reset-confirm/{uid}/{token}/", h.handlePasswordResetConfirm)
}

type accountPayload struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	State string `json:"state"`
}

type authCheckResponse struct {
	Authenticated bool            `json:"authenticated"`
	Account       *accountPayload `json:"account,omitempty"`
}

func toAccountPayload(a *Account) *accountPayload {
	return &accountPayload{ID: a.ID, Email: a.Email, State: string(a.State)}
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	h.csrfManager.WriteCookie(w, token)
	httpx.JSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

func (h *Handler) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if !sess.Authenticated() {
		httpx.JSON(w, http.StatusOK, authCheckResponse{Authenticated: false})
		return
	}
	accountID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		httpx.JSON(w, http.StatusOK, authCheckResponse{Authenticated: false})
		return
	}
	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		httpx.JSON(w, http.StatusOK, authCheckResponse{Authenticated: false})
		return
	}
	httpx.JSON(w, http.StatusOK, authCheckResponse{Authenticated: true, Account: toAccountPayload(account)})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, &shared.ValidationError{Violations: inputViolations(err)})
		return
	}

	account, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	// Rotate the session id on privilege change so a fixed pre-login id
	// stops resolving, then rebind the CSRF token to the new id.
	retired, err := h.sessionManager.Renew(r.Context(), sess)
	if err != nil {
		h.logger.Error("renew session", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if retired != "" {
		if err := h.service.RemoveSession(r.Context(), retired); err != nil {
			h.logger.Warn("remove retired session", slog.Any("error", err))
		}
	}
	sess.SetUser(strconv.FormatInt(account.ID, 10))
	csrfToken, err := h.csrfManager.Rotate(r.Context(), sess)
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	evicted, err := h.service.RegisterSession(r.Context(), SessionRecord{
		ID:        sess.ID,
		AccountID: account.ID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(h.sessionManager.TTL()),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	for _, id := range evicted {
		if err := h.sessionManager.Discard(r.Context(), id); err != nil {
			h.logger.Warn("discard evicted session", slog.String("id", id), slog.Any("error", err))
		}
	}

	h.csrfManager.WriteCookie(w, csrfToken)
	httpx.JSON(w, http.StatusOK, authCheckResponse{Authenticated: true, Account: toAccountPayload(account)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"detail": "logged out"})
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, &shared.ValidationError{Violations: inputViolations(err)})
		return
	}
	account, err := h.service.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"detail":  "account created, check your email for the activation link",
		"account": toAccountPayload(account),
	})
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	token := chi.URLParam(r, "token")
	account, err := h.service.Activate(r.Context(), uid, token)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"detail":  "account activated",
		"account": toAccountPayload(account),
	})
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, &shared.ValidationError{Violations: inputViolations(err)})
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.logger.Error("request password reset", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	// Identical response whether or not the handle exists.
	httpx.JSON(w, http.StatusOK, map[string]string{
		"detail": "if the email exists, a reset link has been sent",
	})
}

type passwordResetConfirmRequest struct {
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, &shared.ValidationError{Violations: inputViolations(err)})
		return
	}
	uid := chi.URLParam(r, "uid")
	token := chi.URLParam(r, "token")
	if err := h.service.ConfirmPasswordReset(r.Context(), uid, token, req.Password); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"detail": "password has been reset"})
}

func inputViolations(err error) []string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{"invalid input"}
	}
	violations := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			violations = append(violations, fe.Field()+" is required")
		case "email":
			violations = append(violations, fe.Field()+" must be a valid email address")
		default:
			violations = append(violations, fe.Field()+" is invalid")
		}
	}
	return violations
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
