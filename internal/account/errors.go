package account

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, wrong password, role
	// mismatch and deactivated accounts alike, so login answers never reveal
	// which part failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrEmailTaken            = errors.New("email already registered")
	ErrSecretCodeRequired    = errors.New("secret code required")
	ErrInvalidSecretCode     = errors.New("invalid secret code")
	ErrAdminLimitReached     = errors.New("admin limit reached for city")
	ErrSelfDeletionForbidden = errors.New("self deletion forbidden")
	ErrRequestNotPending     = errors.New("admin request already processed")
	ErrValidation            = errors.New("validation failed")
)
