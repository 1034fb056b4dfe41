package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"medocs-backend/internal/shared/telemetry"
)

const statusTransitionKey = "statusTransition"

// SetStatusTransition records a document state change for the access log.
func SetStatusTransition(c *gin.Context, from, to string) {
	c.Set(statusTransitionKey, from+"->"+to)
}

// Logging writes one access log line per request. Server errors log at error
// level and client errors at warn.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"route":       route,
			"path":        c.Request.URL.Path,
			"status":      status,
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"user_id":     UserIDFromContext(c),
			"role":        RoleFromContext(c),
			"client_ip":   c.ClientIP(),
		}
		if id := c.Param("id"); id != "" {
			fields["document_id"] = id
		}
		if isGuest, ok := c.Get(isGuestKey); ok {
			fields["is_guest"] = isGuest
		}
		if transition := c.GetString(statusTransitionKey); transition != "" {
			fields["status_transition"] = transition
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch {
		case status >= http.StatusInternalServerError:
			telemetry.Error("http.request", fields)
		case status >= http.StatusBadRequest:
			telemetry.Warn("http.request", fields)
		default:
			telemetry.Info("http.request", fields)
		}
	}
}
