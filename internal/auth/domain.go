package auth

import (
	"encoding/base64"
	"strconv"
	"time"

	"github.com/byfaith/byfaith/internal/shared"
)

// AccountState tracks where an account sits in its lifecycle.
type AccountState string

const (
	// StateUnverified is the state of a freshly signed-up account awaiting
	// email activation.
	StateUnverified AccountState = "unverified"
	// StateActive is the state of an activated account.
	StateActive AccountState = "active"
	// StateDisabled is terminal and only reachable administratively.
	StateDisabled AccountState = "disabled"
)

// Account represents a user account.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	State        AccountState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenPurpose scopes an action token to the single flow it authorizes.
type TokenPurpose string

const (
	// PurposeActivate tokens move an account from unverified to active.
	PurposeActivate TokenPurpose = "activate"
	// PurposeResetPassword tokens authorize one credential replacement.
	PurposeResetPassword TokenPurpose = "reset_password"
)

// ActionToken is the stored form of a single-use token. Only the SHA-256
// verifier is persisted; the raw value is handed out once and never
// re-derivable from storage.
type ActionToken struct {
	ID         int64
	AccountID  int64
	TokenHash  string
	Purpose    TokenPurpose
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// EncodeUID renders an account id for use in activation and reset URLs,
// matching the frontend's uid path segment.
func EncodeUID(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeUID parses a uid path segment back into an account id.
func DecodeUID(uid string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return 0, shared.ErrTokenInvalid
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ErrTokenInvalid
	}
	return id, nil
}
