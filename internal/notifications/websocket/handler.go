package websocket

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
)

// TokenVerifier resolves an access token to a caller.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, accessToken string) (auth.Caller, error)
}

type Handler struct {
	manager  *Manager
	verifier TokenVerifier
	logger   *zap.Logger
}

func NewHandler(manager *Manager, verifier TokenVerifier, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, verifier: verifier, logger: logger}
}

// RegisterRoutes mounts the live feed at /ws/marketplace.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws/marketplace", h.Serve)
}

// Serve upgrades to a websocket. A token (query "token" or bearer header) is
// optional; without one the client only sees public events.
func (h *Handler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}

	userID := ""
	if token != "" {
		caller, err := h.verifier.VerifyAccessToken(c.Request.Context(), token)
		if err != nil {
			apperrors.Respond(c, h.logger, err)
			return
		}
		userID = caller.UserID.String()
	}

	conn, err := h.manager.HandleConnection(c.Writer, c.Request, userID)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	h.logger.Debug("WebSocket connected",
		zap.String("connection_id", conn.ID),
		zap.String("user_id", userID))
}
