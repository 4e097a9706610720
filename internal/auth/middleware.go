package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
)

const callerKey = "auth.caller"

// RequireAuth validates the bearer access token and stores the caller in the context.
func RequireAuth(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apperrors.Respond(c, nil, apperrors.Authentication("authentication credentials were not provided"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			apperrors.Respond(c, nil, apperrors.Authentication("invalid authorization header format"))
			return
		}

		caller, err := svc.VerifyAccessToken(c.Request.Context(), parts[1])
		if err != nil {
			apperrors.Respond(c, nil, err)
			return
		}

		SetCaller(c, caller)
		c.Next()
	}
}

// SetCaller stores caller as the request identity.
func SetCaller(c *gin.Context, caller Caller) {
	c.Set(callerKey, caller)
}

// CallerFromContext returns the caller stored by RequireAuth.
func CallerFromContext(c *gin.Context) (Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return Caller{}, false
	}
	caller, ok := v.(Caller)
	return caller, ok
}

// MustCaller returns the authenticated caller or writes a 401 and returns false.
func MustCaller(c *gin.Context) (Caller, bool) {
	caller, ok := CallerFromContext(c)
	if !ok {
		apperrors.Respond(c, nil, apperrors.Authentication("authentication credentials were not provided"))
		return Caller{}, false
	}
	return caller, true
}
