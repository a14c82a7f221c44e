package http

import (
	"net/http"

	"nido/internal/core/domain"
	"nido/internal/core/services"
	"nido/internal/infrastructure/middleware"
	"nido/internal/infrastructure/monitoring"
	"nido/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter assembles the local API engine: recovery, tracing, rate
// limiting and structured error responses around the device routes,
// plus the health and metrics endpoints.
func NewRouter(cfg *config.Config, logger *zap.SugaredLogger, handler *DeviceHandler, health *monitoring.HealthChecker) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	router.Use(middleware.ErrorHandlerMiddleware(logger))

	handler.SetupRoutes(router)

	router.GET("/healthz", HealthzHandler(health))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// RegisterSessionRoutes mounts the endpoints admitted viewers reach
// with their minted session token.
func RegisterSessionRoutes(router *gin.Engine, identity *services.IdentityService, token domain.PairingToken) {
	session := router.Group("/api/v1/session")
	session.Use(middleware.SessionAuthMiddleware(identity, token))
	session.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"viewer_id":   c.MustGet("viewer_id"),
			"viewer_name": c.MustGet("viewer_name"),
		})
	})
}
