package shared

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAuthenticated indicates the session carries no account.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAccountDisabled indicates a disabled account was used.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrDuplicateAccount indicates the handle is already registered.
	ErrDuplicateAccount = errors.New("account already registered")
	// ErrTokenInvalid covers absent, expired and consumed action tokens.
	// The reasons are deliberately indistinguishable to callers.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// ValidationError enumerates every violated rule so legitimate users can fix
// all of them at once.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// AsValidationError unwraps err into a ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
