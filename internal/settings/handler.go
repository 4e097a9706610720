package settings

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the profile endpoints; rg must already require authentication.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	users := rg.Group("/users")
	{
		users.GET("/profile/", h.GetProfile)
		users.PATCH("/profile/", h.UpdateProfile)
		users.PUT("/profile/", h.UpdateProfile)

		users.GET("/notifications/", h.GetNotifications)
		users.PUT("/notifications/", h.UpdateNotifications)
	}
}

func (h *Handler) GetProfile(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	profile, err := h.service.GetProfile(c.Request.Context(), caller)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	var payload UpdateProfileRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := h.service.UpdateProfile(c.Request.Context(), caller, payload)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) GetNotifications(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	prefs, err := h.service.GetNotifications(c.Request.Context(), caller.UserID)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *Handler) UpdateNotifications(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	var payload UpdateNotificationsRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	prefs, err := h.service.UpdateNotifications(c.Request.Context(), caller, payload)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}
