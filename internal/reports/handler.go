package reports

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/projects"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	reports := rg.Group("/reports")
	{
		reports.GET("/summary/", h.Summary)
		reports.GET("/my-sales/export/", h.ExportSales)
	}
	rg.GET("/nfts/:id/certificate/", h.Certificate)
}

func (h *Handler) Summary(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), caller)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ExportSales renders into a buffer first so a failure still produces a JSON error.
func (h *Handler) ExportSales(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", FormatXLSX)

	var buf bytes.Buffer
	contentType, err := h.service.ExportSales(c.Request.Context(), caller, format, &buf)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=sales."+format)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *Handler) Certificate(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	id, ok := projects.ParseID(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.service.WriteCertificate(c.Request.Context(), caller, id, &buf); err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", "inline; filename=certificate-"+id.String()+".pdf")
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
