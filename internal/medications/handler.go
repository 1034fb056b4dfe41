package medications

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"medocs-backend/internal/documents"
	"medocs-backend/internal/shared/server/middleware"
	"medocs-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches medication routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents/:id/medications", h.listForDocument)
	rg.GET("/medications", h.listForUser)
	rg.GET("/medications/aggregated", h.aggregated)
}

func (h *Handler) listForDocument(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	views, err := h.Svc.ListForDocument(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		documents.RespondError(c, err, "failed to list medications")
		return
	}
	respond.JSON(c, http.StatusOK, ToMedicationResponses(views))
}

func (h *Handler) listForUser(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	views, err := h.Svc.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to list medications")
		return
	}
	respond.JSON(c, http.StatusOK, ToMedicationResponses(views))
}

func (h *Handler) aggregated(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	aggs, err := h.Svc.Aggregated(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to aggregate medications")
		return
	}
	respond.JSON(c, http.StatusOK, ToAggregatedResponses(aggs))
}

func respondError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, ErrInvalidInput) {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	documents.RespondError(c, err, fallback)
}
