package handlers

import (
	"reorder-service/internal/auth"
	"reorder-service/internal/config"
	"reorder-service/pkg/logger"
	"reorder-service/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter configures the Gin router with all routes and middleware.
// The manual trigger endpoint requires a bearer token when a JWT secret is
// configured; without one the endpoint is open (single-user deployments).
func SetupRouter(cfg *config.Config, h *StatusHandler, jwtManager *auth.JWTManager, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware(log))
	router.Use(logger.GinMiddleware(log))

	router.GET("/healthz", h.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", h.GetStatus)
		v1.GET("/connectivity", h.Connectivity)

		if cfg.JWTSecret != "" && jwtManager != nil {
			v1.POST("/check", middleware.AuthMiddleware(jwtManager, log), h.TriggerCheck)
		} else {
			log.Warn("JWT secret not configured, trigger endpoint is unauthenticated")
			v1.POST("/check", h.TriggerCheck)
		}
	}

	return router
}
