package processing

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"medocs-backend/internal/documents"
	"medocs-backend/internal/shared/server/middleware"
	"medocs-backend/internal/shared/server/respond"
)

const (
	ModeSync  = "sync"
	ModeQueue = "queue"
)

// DocumentGetter resolves a document for a viewer.
type DocumentGetter interface {
	Get(ctx context.Context, viewerID, documentID string) (documents.Document, error)
}

// Handler exposes processing requests over HTTP.
type Handler struct {
	Mgr  *Manager
	Docs DocumentGetter
	Mode string
}

// NewHandler constructs a Handler.
func NewHandler(mgr *Manager, docs DocumentGetter, mode string) *Handler {
	return &Handler{Mgr: mgr, Docs: docs, Mode: mode}
}

// RegisterRoutes attaches processing routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/process", h.process)
}

type processResponse struct {
	Document          documents.DocumentResponse `json:"document"`
	AlreadyProcessing bool                       `json:"alreadyProcessing"`
}

func (h *Handler) process(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")
	if documentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document id is required", nil)
		return
	}
	force, _ := strconv.ParseBool(c.Query("force"))

	ctx := c.Request.Context()
	doc, err := h.Docs.Get(ctx, userID, documentID)
	if err != nil {
		documents.RespondError(c, err, "failed to start processing")
		return
	}
	if doc.UserID != userID {
		respond.Error(c, http.StatusForbidden, "forbidden", "only the owner can process a document", nil)
		return
	}

	prevState := doc.State
	status := http.StatusOK
	var outcome StartOutcome
	if h.Mode == ModeQueue {
		doc, outcome, err = h.Mgr.Enqueue(ctx, documentID, force)
		status = http.StatusAccepted
	} else {
		doc, outcome, err = h.Mgr.Process(ctx, documentID, force)
	}
	if err != nil {
		if errors.Is(err, ErrQueueNotConfigured) {
			respond.Error(c, http.StatusServiceUnavailable, "queue_unavailable", "processing queue is not configured", nil)
			return
		}
		documents.RespondError(c, err, "failed to process document")
		return
	}
	if outcome == OutcomeAlreadyProcessing {
		status = http.StatusOK
	} else {
		middleware.SetStatusTransition(c, string(prevState), string(doc.State))
	}

	respond.JSON(c, status, processResponse{
		Document:          documents.ToResponse(doc),
		AlreadyProcessing: outcome == OutcomeAlreadyProcessing,
	})
}
