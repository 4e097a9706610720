package projects

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers project registry routes; rg must already require authentication.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	projects := rg.Group("/projects")
	{
		projects.GET("/", h.ListApproved)
		projects.POST("/", h.Submit)
		projects.GET("/my-projects/", h.ListOwn)
		projects.GET("/pending-review/", h.ListPendingForReview)
		projects.GET("/verifier-dashboard/", h.ListForVerifierDashboard)
		projects.GET("/:id/", h.GetProject)
		projects.PATCH("/:id/", h.UpdateProject)
		projects.PUT("/:id/", h.UpdateProject)
		projects.DELETE("/:id/", h.DeleteProject)
		projects.GET("/:id/activity/", h.ListActivity)
	}
}

// ParseID reads the :id path parameter, writing a 404 when it is not a uuid.
func ParseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) Submit(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.service.Submit(c.Request.Context(), caller, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

func (h *Handler) ListApproved(c *gin.Context) {
	h.list(c, h.service.ListApproved)
}

func (h *Handler) ListOwn(c *gin.Context) {
	h.list(c, h.service.ListOwn)
}

func (h *Handler) ListPendingForReview(c *gin.Context) {
	h.list(c, h.service.ListPendingForReview)
}

func (h *Handler) ListForVerifierDashboard(c *gin.Context) {
	h.list(c, h.service.ListForVerifierDashboard)
}

func (h *Handler) list(c *gin.Context, fn func(ctx context.Context, caller auth.Caller) ([]Project, error)) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	projects, err := fn(c.Request.Context(), caller)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	if projects == nil {
		projects = []Project{}
	}
	c.JSON(http.StatusOK, projects)
}

func (h *Handler) GetProject(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	id, ok := ParseID(c)
	if !ok {
		return
	}

	project, err := h.service.GetByID(c.Request.Context(), caller, id)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) UpdateProject(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.service.Update(c.Request.Context(), caller, id, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) DeleteProject(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	id, ok := ParseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), caller, id); err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListActivity(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	id, ok := ParseID(c)
	if !ok {
		return
	}

	activities, err := h.service.ListActivity(c.Request.Context(), caller, id)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, activities)
}
