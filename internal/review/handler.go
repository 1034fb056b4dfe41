package review

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medocs-backend/internal/documents"
	"medocs-backend/internal/shared/auth"
	"medocs-backend/internal/shared/server/middleware"
	"medocs-backend/internal/shared/server/respond"
)

// Documents resolves documents visible to a viewer.
type Documents interface {
	Get(ctx context.Context, viewerID, documentID string) (documents.Document, error)
	ListShared(ctx context.Context, reviewerID string) ([]documents.Document, error)
}

type Handler struct {
	Svc  *Service
	Docs Documents
}

func NewHandler(svc *Service, docs Documents) *Handler {
	return &Handler{Svc: svc, Docs: docs}
}

// RegisterRoutes attaches review and sharing routes. Annotations and the
// shared listing are doctor-only; sharing is managed by the owner.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	doctor := middleware.RequireRole(auth.RoleDoctor)
	rg.PUT("/documents/:id/endorsement", doctor, h.endorse)
	rg.PUT("/documents/:id/flag", doctor, h.flag)
	rg.GET("/shared-documents", doctor, h.listShared)
	rg.PUT("/documents/:id/shares/:reviewerId", h.share)
	rg.DELETE("/documents/:id/shares/:reviewerId", h.unshare)
}

type annotationRequest struct {
	Note string `json:"note"`
}

func (h *Handler) endorse(c *gin.Context) {
	h.annotate(c, h.Svc.Endorse)
}

func (h *Handler) flag(c *gin.Context) {
	h.annotate(c, h.Svc.Flag)
}

type annotateFunc func(ctx context.Context, documentID, reviewerID, displayName, note string) (documents.Document, error)

func (h *Handler) annotate(c *gin.Context, apply annotateFunc) {
	var req annotationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}

	reviewerID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")
	if _, err := h.Docs.Get(c.Request.Context(), reviewerID, documentID); err != nil {
		documents.RespondError(c, err, "failed to load document")
		return
	}

	doc, err := apply(c.Request.Context(), documentID, reviewerID, middleware.UserNameFromContext(c), req.Note)
	if err != nil {
		documents.RespondError(c, err, "failed to annotate document")
		return
	}
	respond.JSON(c, http.StatusOK, documents.ToResponse(doc))
}

func (h *Handler) share(c *gin.Context) {
	h.changeShares(c, h.Svc.Share)
}

func (h *Handler) unshare(c *gin.Context) {
	h.changeShares(c, h.Svc.Unshare)
}

func (h *Handler) changeShares(c *gin.Context, apply func(ctx context.Context, documentID, reviewerID string) (documents.Document, error)) {
	userID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")
	reviewerID := strings.TrimSpace(c.Param("reviewerId"))

	doc, err := h.Docs.Get(c.Request.Context(), userID, documentID)
	if err != nil {
		documents.RespondError(c, err, "failed to load document")
		return
	}
	if doc.UserID != userID {
		respond.Error(c, http.StatusForbidden, "forbidden", "only the owner can change sharing", nil)
		return
	}

	doc, err = apply(c.Request.Context(), documentID, reviewerID)
	if err != nil {
		documents.RespondError(c, err, "failed to update sharing")
		return
	}
	respond.JSON(c, http.StatusOK, documents.ToResponse(doc))
}

func (h *Handler) listShared(c *gin.Context) {
	docs, err := h.Docs.ListShared(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		documents.RespondError(c, err, "failed to list shared documents")
		return
	}
	respond.JSON(c, http.StatusOK, documents.ToResponses(docs))
}
