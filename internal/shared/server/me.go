package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medocs-backend/internal/shared/server/middleware"
	"medocs-backend/internal/shared/server/respond"
)

type meResponse struct {
	UserID  string `json:"userId"`
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	IsGuest bool   `json:"isGuest"`
}

// GET /me echoes the caller's identity so clients can pick patient or
// doctor views.
func meHandler(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}
	respond.JSON(c, http.StatusOK, meResponse{
		UserID:  userID,
		Role:    middleware.RoleFromContext(c),
		Name:    middleware.UserNameFromContext(c),
		IsGuest: middleware.IsGuest(c),
	})
}
