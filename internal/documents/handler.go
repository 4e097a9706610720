package documents

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
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
	files := rg.Group("/projects/:id/files")
	{
		files.POST("/", h.Upload)
		files.GET("/", h.List)
		files.GET("/:fileId/", h.Download)
	}
}

// Upload accepts a multipart form with "file" and "kind".
func (h *Handler) Upload(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	projectID, ok := projects.ParseID(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	f, err := file.Open()
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	defer f.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc, err := h.service.UploadFile(c.Request.Context(), caller, UploadRequest{
		ProjectID:   projectID,
		Kind:        projects.FileKind(c.PostForm("kind")),
		FileName:    file.Filename,
		ContentType: contentType,
		FileSize:    file.Size,
		FileContent: f,
	})
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) List(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	projectID, ok := projects.ParseID(c)
	if !ok {
		return
	}

	files, err := h.service.ListFiles(c.Request.Context(), caller, projectID)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

func (h *Handler) Download(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}
	projectID, ok := projects.ParseID(c)
	if !ok {
		return
	}
	fileID, err := uuid.Parse(c.Param("fileId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	file, body, err := h.service.DownloadFile(c.Request.Context(), caller, projectID, fileID)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, file.FileSize, file.ContentType, body, map[string]string{
		"Content-Disposition": "attachment; filename=" + strconv.Quote(file.FileName),
	})
}
