package notifications

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
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

// RegisterRoutes mounts the inbox; rg must already require authentication.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	n := rg.Group("/notifications")
	{
		n.GET("/", h.List)
		n.POST("/:id/read/", h.MarkRead)
	}
}

func (h *Handler) List(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.service.ListForUser(c.Request.Context(), caller.UserID, limit, offset)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) MarkRead(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), caller.UserID, id); err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
