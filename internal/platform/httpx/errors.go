package httpx

import (
	"errors"
	"net/http"

	"github.com/byfaith/byfaith/internal/shared"
)

// RespondError maps domain errors to HTTP responses without leaking internal
// state. Token failures stay opaque; password policy violations are spelled
// out in full.
func RespondError(w http.ResponseWriter, err error) {
	if ve, ok := shared.AsValidationError(err); ok {
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:      "Validation Failed",
			Status:     http.StatusBadRequest,
			Violations: ve.Violations,
		})
		return
	}
	switch {
	case errors.Is(err, shared.ErrTokenInvalid):
		Problem(w, http.StatusBadRequest, "Invalid Token", "token is invalid or expired")
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Invalid Credentials", "email or password is incorrect")
	case errors.Is(err, shared.ErrNotAuthenticated):
		Problem(w, http.StatusUnauthorized, "Not Authenticated", "")
	case errors.Is(err, shared.ErrAccountDisabled):
		Problem(w, http.StatusForbidden, "Account Disabled", "")
	case errors.Is(err, shared.ErrCSRFTokenMissing), errors.Is(err, shared.ErrCSRFTokenMismatch):
		Problem(w, http.StatusForbidden, "CSRF Rejected", "")
	case errors.Is(err, shared.ErrDuplicateAccount):
		Problem(w, http.StatusConflict, "Duplicate Account", "an account with this email already exists")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
