package marketplace

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/projects"
)

type Handler struct {
	engine Engine
	logger *zap.Logger
}

func NewHandler(engine Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// RegisterRoutes mounts the marketplace. Browsing active listings is public;
// everything under protected requires an authenticated caller.
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.GET("/listings/", h.ListActiveListings)

	protected.PATCH("/projects/:id/review/", h.Review)
	protected.PUT("/projects/:id/review/", h.Review)

	listings := protected.Group("/listings")
	{
		listings.POST("/", h.CreateListing)
		listings.GET("/my-listings/", h.ListMyListings)
		listings.POST("/:id/buy/", h.Buy)
		listings.POST("/:id/claim/", h.Claim)
		listings.POST("/:id/withdraw/", h.Withdraw)
	}

	nfts := protected.Group("/nfts")
	{
		nfts.GET("/my-nfts/", h.ListMyCredits)
		nfts.GET("/:id/", h.GetCredit)
	}
}

func (h *Handler) Review(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	id, ok := projects.ParseID(c)
	if !ok {
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.engine.Review(c.Request.Context(), caller, id, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) ListActiveListings(c *gin.Context) {
	listings, err := h.engine.ListActiveListings(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	if listings == nil {
		listings = []Listing{}
	}
	c.JSON(http.StatusOK, listings)
}

// CreateListing checks the role before looking at the body so a buyer is
// always refused with 403.
func (h *Handler) CreateListing(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	if err := auth.RequireRole(caller, auth.RoleSeller); err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}

	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listing, err := h.engine.CreateListing(c.Request.Context(), caller, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

func (h *Handler) ListMyListings(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	listings, err := h.engine.ListMyListings(c.Request.Context(), caller)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	if listings == nil {
		listings = []Listing{}
	}
	c.JSON(http.StatusOK, listings)
}

func (h *Handler) Buy(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	id, ok := projects.ParseID(c)
	if !ok {
		return
	}

	credit, err := h.engine.Buy(c.Request.Context(), caller, id)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, credit)
}

func (h *Handler) Claim(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	id, ok := projects.ParseID(c)
	if !ok {
		return
	}

	listing, err := h.engine.Claim(c.Request.Context(), caller, id)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "claimed", "listing": listing})
}

func (h *Handler) Withdraw(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	id, ok := projects.ParseID(c)
	if !ok {
		return
	}

	listing, err := h.engine.Withdraw(c.Request.Context(), caller, id)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "withdrawn", "listing": listing})
}

func (h *Handler) ListMyCredits(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	credits, err := h.engine.ListMyCredits(c.Request.Context(), caller)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	if credits == nil {
		credits = []CarbonCredit{}
	}
	c.JSON(http.StatusOK, credits)
}

func (h *Handler) GetCredit(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	id, ok := projects.ParseID(c)
	if !ok {
		return
	}

	credit, err := h.engine.GetCredit(c.Request.Context(), caller, id)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, credit)
}
