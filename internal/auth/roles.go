package auth

import (
	"github.com/google/uuid"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
)

// Caller is the authenticated identity a request acts as.
type Caller struct {
	UserID uuid.UUID
	Role   Role
}

// RequireRole fails with an authorization error unless caller holds one of roles.
func RequireRole(caller Caller, roles ...Role) error {
	if caller.UserID == uuid.Nil {
		return apperrors.Authentication("authentication credentials were not provided")
	}
	for _, r := range roles {
		if caller.Role == r {
			return nil
		}
	}
	return apperrors.Authorization("you do not have permission to perform this action")
}

// RequireAuthenticated fails unless the caller carries a user id.
func RequireAuthenticated(caller Caller) error {
	if caller.UserID == uuid.Nil {
		return apperrors.Authentication("authentication credentials were not provided")
	}
	return nil
}
