package documents

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medocs-backend/internal/shared/server/middleware"
	"medocs-backend/internal/shared/server/respond"
)

const (
	maxUploadBytes  = 20 << 20
	defaultPageSize = 20
	maxPageSize     = 50
)

// Handler serves the document endpoints.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes mounts the handlers under rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	docs := rg.Group("/documents")
	docs.POST("", h.upload)
	docs.POST("/from-storage", h.createFromStorage)
	docs.GET("", h.list)
	docs.GET("/:id", h.get)
	docs.DELETE("/:id", h.delete)
}

// RespondError writes the error envelope for a document error. Unknown
// errors become a 500 with the fallback message.
func RespondError(c *gin.Context, err error, fallback string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "file exceeds the upload limit", map[string]any{"limitBytes": tooLarge.Limit})
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", "not allowed", nil)
	case errors.Is(err, ErrInvalidTransition):
		respond.Error(c, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}

func badRequest(c *gin.Context, msg string) {
	respond.Error(c, http.StatusBadRequest, "validation_error", msg, nil)
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(c, err, "")
			return
		}
		badRequest(c, "file is required")
		return
	}
	f, err := header.Open()
	if err != nil {
		badRequest(c, "unable to read file")
		return
	}
	defer f.Close()

	doc, err := h.Svc.Upload(c.Request.Context(), middleware.UserIDFromContext(c), header.Filename, f)
	if err != nil {
		RespondError(c, err, "failed to upload document")
		return
	}
	respond.Created(c, "/api/v1/documents/"+doc.ID, ToResponse(doc))
}

type fromStorageRequest struct {
	StorageKey       string `json:"storageKey" binding:"required"`
	OriginalFileName string `json:"originalFileName" binding:"required"`
	ContentType      string `json:"contentType" binding:"required"`
	SizeBytes        int64  `json:"sizeBytes" binding:"gt=0"`
}

// problem trims the fields and names the first one that is still unusable.
func (r *fromStorageRequest) problem() string {
	r.StorageKey = strings.TrimSpace(r.StorageKey)
	r.OriginalFileName = strings.TrimSpace(r.OriginalFileName)
	r.ContentType = strings.TrimSpace(r.ContentType)
	switch {
	case r.StorageKey == "":
		return "storageKey is required"
	case r.OriginalFileName == "":
		return "originalFileName is required"
	case r.ContentType == "":
		return "contentType is required"
	}
	return ""
}

func (h *Handler) createFromStorage(c *gin.Context) {
	var req fromStorageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "storageKey, originalFileName, contentType and a positive sizeBytes are required")
		return
	}
	if msg := req.problem(); msg != "" {
		badRequest(c, msg)
		return
	}

	doc, err := h.Svc.CreateFromStorage(c.Request.Context(), middleware.UserIDFromContext(c),
		req.StorageKey, req.OriginalFileName, req.ContentType, req.SizeBytes)
	if err != nil {
		RespondError(c, err, "failed to create document")
		return
	}
	respond.Created(c, "/api/v1/documents/"+doc.ID, ToResponse(doc))
}

type pageQuery struct {
	Limit  *int `form:"limit"`
	Offset int  `form:"offset"`
}

// page clamps the requested window; a malformed query falls back to the
// first page.
func (q pageQuery) page() (limit, offset int) {
	limit = defaultPageSize
	if q.Limit != nil {
		limit = min(max(*q.Limit, 0), maxPageSize)
	}
	return limit, max(q.Offset, 0)
}

func (h *Handler) list(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		q = pageQuery{}
	}
	limit, offset := q.page()

	docs, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), limit, offset)
	if err != nil {
		RespondError(c, err, "failed to list documents")
		return
	}
	respond.JSON(c, http.StatusOK, ToResponses(docs))
}

func (h *Handler) get(c *gin.Context) {
	doc, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		RespondError(c, err, "failed to fetch document")
		return
	}
	respond.JSON(c, http.StatusOK, ToResponse(doc))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.Svc.Delete(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id")); err != nil {
		RespondError(c, err, "failed to delete document")
		return
	}
	respond.NoContent(c)
}
