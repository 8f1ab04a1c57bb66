package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/byfaith/byfaith/internal/mail"
	"github.com/byfaith/byfaith/internal/shared"
)

// ServiceConfig tunes the account lifecycle rules.
type ServiceConfig struct {
	// FrontendBaseURL is the origin the activation and reset links point at.
	FrontendBaseURL string
	// MaxSessionsPerAccount caps concurrent sessions per account.
	// Zero means unlimited.
	MaxSessionsPerAccount int
}

// Service owns the account state machine and composes the password policy,
// token service and mail capability.
type Service struct {
	repo   Repository
	tokens *TokenService
	policy *PasswordPolicy
	mailer mail.Mailer
	logger *slog.Logger
	cfg    ServiceConfig
}

// NewService constructs a Service.
func NewService(repo Repository, tokens *TokenService, policy *PasswordPolicy, mailer mail.Mailer, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, policy: policy, mailer: mailer, logger: logger, cfg: cfg}
}

// Signup creates an unverified account and dispatches the activation email.
func (s *Service) Signup(ctx context.Context, email, password string) (*Account, error) {
	email = NormalizeEmail(email)
	if violations := s.policy.Validate(password, PasswordContext{Email: email}); len(violations) > 0 {
		return nil, &shared.ValidationError{Violations: violations}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.CreateAccount(ctx, email, string(hash))
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(ctx, account.ID, PurposeActivate)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, mail.ActivationMessage(account.Email, s.cfg.FrontendBaseURL, EncodeUID(account.ID), token))
	return account, nil
}

// Activate consumes an activation token and transitions the account to
// active. A stale token, or one bound to a different account than the uid,
// fails with ErrTokenInvalid.
func (s *Service) Activate(ctx context.Context, uid, token string) (*Account, error) {
	accountID, err := DecodeUID(uid)
	if err != nil {
		return nil, err
	}
	boundID, err := s.tokens.Consume(ctx, token, PurposeActivate)
	if err != nil {
		return nil, err
	}
	if boundID != accountID {
		return nil, shared.ErrTokenInvalid
	}
	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.State != StateUnverified {
		return nil, shared.ErrTokenInvalid
	}
	if err := s.repo.UpdateState(ctx, account.ID, StateActive); err != nil {
		return nil, err
	}
	account.State = StateActive
	return account, nil
}

// Authenticate validates email/password credentials. Unknown handles, wrong
// passwords and unverified accounts are indistinguishable; a disabled
// account with correct credentials reports ErrAccountDisabled.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	account, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		// Hash anyway so the response time does not reveal handle existence.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	switch account.State {
	case StateActive:
		return account, nil
	case StateDisabled:
		return nil, shared.ErrAccountDisabled
	default:
		return nil, shared.ErrInvalidCredentials
	}
}

// RegisterSession records a login session row and enforces the per-account
// concurrency cap. The returned ids are sessions evicted to make room; the
// caller drops their Redis records.
func (s *Service) RegisterSession(ctx context.Context, rec SessionRecord) ([]string, error) {
	var evicted []string
	if s.cfg.MaxSessionsPerAccount > 0 {
		existing, err := s.repo.ListSessions(ctx, rec.AccountID)
		if err != nil {
			return nil, err
		}
		for len(existing)+1 > s.cfg.MaxSessionsPerAccount && len(existing) > 0 {
			oldest := existing[0]
			existing = existing[1:]
			if err := s.repo.DeleteSession(ctx, oldest.ID); err != nil {
				return nil, err
			}
			evicted = append(evicted, oldest.ID)
		}
	}
	if err := s.repo.CreateSession(ctx, rec); err != nil {
		return nil, err
	}
	return evicted, nil
}

// RemoveSession deletes a session audit row. Idempotent.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// GetAccount fetches an account by id.
func (s *Service) GetAccount(ctx context.Context, id int64) (*Account, error) {
	return s.repo.FindByID(ctx, id)
}

// RequestPasswordReset issues a reset token and dispatches the email when
// the handle belongs to a non-disabled account. It reports success either
// way so responses cannot be used to enumerate accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if account.State == StateDisabled {
		return nil
	}
	token, err := s.tokens.Issue(ctx, account.ID, PurposeResetPassword)
	if err != nil {
		return err
	}
	s.dispatch(ctx, mail.PasswordResetMessage(account.Email, s.cfg.FrontendBaseURL, EncodeUID(account.ID), token))
	return nil
}

// ConfirmPasswordReset replaces the credential hash after validating the new
// password and consuming the reset token, in that order: a valid token is
// never burned on a rejected password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, uid, token, newPassword string) error {
	accountID, err := DecodeUID(uid)
	if err != nil {
		return err
	}
	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrTokenInvalid
		}
		return err
	}
	if account.State == StateDisabled {
		return shared.ErrAccountDisabled
	}
	if violations := s.policy.Validate(newPassword, PasswordContext{Email: account.Email}); len(violations) > 0 {
		return &shared.ValidationError{Violations: violations}
	}

	boundID, err := s.tokens.Consume(ctx, token, PurposeResetPassword)
	if err != nil {
		return err
	}
	if boundID != account.ID {
		return shared.ErrTokenInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePasswordHash(ctx, account.ID, string(hash))
}

// SweepExpired purges expired tokens and session audit rows.
func (s *Service) SweepExpired(ctx context.Context) error {
	tokens, err := s.tokens.SweepExpired(ctx)
	if err != nil {
		return err
	}
	sessions, err := s.repo.DeleteExpiredSessions(ctx, time.Now())
	if err != nil {
		return err
	}
	if tokens > 0 || sessions > 0 {
		s.logger.Info("auth sweep", slog.Int64("tokens", tokens), slog.Int64("sessions", sessions))
	}
	return nil
}

// dispatch hands a message to the mailer. Delivery failures are logged and
// never roll back state already committed.
func (s *Service) dispatch(ctx context.Context, msg mail.Message) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("dispatch mail", slog.String("to", msg.To), slog.Any("error", err))
	}
}

// NormalizeEmail canonicalizes a handle for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("timing-equalizer"), bcrypt.DefaultCost)
	if err != nil {
		return []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B718aCJmFJ1oW3mEHFW6eFQGJ1zK")
	}
	return h
}()
