package auth

import "tessera-backend/internal/pkg/apperr"

var (
	ErrEmailPasswordRequired = apperr.Validation("Email and password are required")
	ErrInvalidCredentials    = apperr.Unauthenticated("Invalid email or password")
	ErrAccountDeactivated    = apperr.Unauthenticated("Account deactivated")
	ErrNotAuthenticated      = apperr.Unauthenticated("Not authenticated")
	ErrEmailTaken            = apperr.Conflict("Email already registered")
)
