// Package uploads lets clients upload straight to the object store. The
// client asks for a presigned PUT, uploads, then registers the document
// with POST /documents/from-storage using the returned storage key.
package uploads

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"medocs-backend/internal/shared/server/middleware"
	"medocs-backend/internal/shared/server/respond"
	"medocs-backend/internal/shared/storage/object"
	"medocs-backend/internal/shared/telemetry"
)

const (
	maxUploadBytes = 20 << 20
	presignExpires = 15 * time.Minute
)

// accepted lists what the processing pipeline can read: text formats go
// through extraction, images go to the model as-is.
var accepted = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
	"image/png",
	"image/jpeg",
}

func isAccepted(contentType string) bool {
	for _, ct := range accepted {
		if ct == contentType {
			return true
		}
	}
	return false
}

type Handler struct {
	Presigner object.Presigner
	now       func() time.Time
}

func NewHandler(presigner object.Presigner) *Handler {
	return &Handler{Presigner: presigner, now: time.Now}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads/presign", h.presign)
}

type presignRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type presignResponse struct {
	UploadURL        string            `json:"uploadUrl"`
	Method           string            `json:"method"`
	Headers          map[string]string `json:"headers"`
	StorageKey       string            `json:"storageKey"`
	ExpiresInSeconds int64             `json:"expiresInSeconds"`
	ExpiresAt        time.Time         `json:"expiresAt"`
}

func (h *Handler) presign(c *gin.Context) {
	if h.Presigner == nil {
		respond.Error(c, http.StatusServiceUnavailable, "unavailable", "direct uploads are not configured", nil)
		return
	}

	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "fileName and contentType are required")
		return
	}
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	switch {
	case !isAccepted(contentType):
		respond.Error(c, http.StatusBadRequest, "validation_error", "contentType is not allowed",
			map[string]any{"accepted": accepted})
		return
	case req.SizeBytes <= 0:
		invalid(c, "sizeBytes must be positive")
		return
	case req.SizeBytes > maxUploadBytes:
		respond.Error(c, http.StatusBadRequest, "validation_error", "sizeBytes exceeds limit",
			map[string]any{"limitBytes": maxUploadBytes})
		return
	}

	key, err := object.NewKey(middleware.UserIDFromContext(c), strings.TrimSpace(req.FileName))
	if err != nil {
		invalid(c, "invalid fileName")
		return
	}

	ctx := c.Request.Context()
	url, err := h.Presigner.PresignPut(ctx, key, presignExpires)
	if err != nil {
		telemetry.Error("uploads.presign_failed", map[string]any{
			"err":         err,
			"storage_key": key,
			"request_id":  telemetry.RequestID(ctx),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to generate upload url", nil)
		return
	}

	respond.JSON(c, http.StatusOK, presignResponse{
		UploadURL:        url,
		Method:           http.MethodPut,
		Headers:          map[string]string{"Content-Type": contentType},
		StorageKey:       key,
		ExpiresInSeconds: int64(presignExpires / time.Second),
		ExpiresAt:        h.now().UTC().Add(presignExpires),
	})
}

func invalid(c *gin.Context, msg string) {
	respond.Error(c, http.StatusBadRequest, "validation_error", msg, nil)
}
