package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medocs-backend/internal/services/health"
	"medocs-backend/internal/shared/config"
	"medocs-backend/internal/shared/metrics"
	"medocs-backend/internal/shared/server/middleware"
	"medocs-backend/internal/shared/server/respond"
)

// Registrar is implemented by every feature handler.
type Registrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouterDeps carries the handlers mounted under /api/v1. Nil handlers are
// skipped.
type RouterDeps struct {
	Config      config.Config
	Health      *health.Service
	Documents   Registrar
	Processing  Registrar
	Medications Registrar
	Review      Registrar
	Uploads     Registrar
	RateLimiter *middleware.RateLimiter
}

const (
	rateGroupProcess = "PROCESS"
	rateGroupUpload  = "UPLOAD"
	rateGroupDefault = "DEFAULT"
)

var rateLimitRules = map[string]middleware.RateRule{
	rateGroupProcess: {PerSecond: 0.2, Burst: 5},
	rateGroupUpload:  {PerSecond: 1, Burst: 10},
	rateGroupDefault: {PerSecond: 10, Burst: 40},
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		status := deps.Health.Check(c.Request.Context())
		code := http.StatusOK
		if !status.OK {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	})

	authed := api.Group("",
		middleware.Auth(deps.Config.Env),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    rateLimitRules,
			Default:  rateGroupDefault,
			Classify: rateGroupFor,
			Limiter:  deps.RateLimiter,
		}),
	)
	authed.GET("/me", meHandler)
	for _, h := range []Registrar{deps.Documents, deps.Processing, deps.Medications, deps.Review, deps.Uploads} {
		if h != nil {
			h.RegisterRoutes(authed)
		}
	}

	return r
}

func rateGroupFor(c *gin.Context) string {
	if c.Request.Method != http.MethodPost {
		return rateGroupDefault
	}
	switch c.FullPath() {
	case "/api/v1/documents/:id/process":
		return rateGroupProcess
	case "/api/v1/documents", "/api/v1/documents/from-storage", "/api/v1/uploads/presign":
		return rateGroupUpload
	default:
		return rateGroupDefault
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
