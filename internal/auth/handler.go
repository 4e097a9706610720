package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type sessionResponse struct {
	User    *User  `json:"user"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Register creates an account and logs it in
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, tokens, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, sessionResponse{User: user, Access: tokens.Access, Refresh: tokens.Refresh})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := h.service.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}

	tokens, err := h.service.IssueSessionTokens(ctx, user)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse{User: user, Access: tokens.Access, Refresh: tokens.Refresh})
}

func (h *Handler) Refresh(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tokens, err := h.service.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// Logout revokes the presented refresh token
func (h *Handler) Logout(c *gin.Context) {
	caller, ok := MustCaller(c)
	if !ok {
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.RevokeSession(c.Request.Context(), caller, req.Refresh); err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}
