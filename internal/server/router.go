package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/inkmark/inkmark-backend/internal/handlers"
	"github.com/inkmark/inkmark-backend/internal/middleware"
)

type RouterConfig struct {
	ConversionHandler *handlers.ConversionHandler
	AuthMiddleware    *middleware.AuthMiddleware
	AllowOrigins      []string
	TracingEnabled    bool
	ServiceName       string
	// StaticFilesRoot, when set, is served at /files (local storage mode).
	StaticFilesRoot string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	if cfg.TracingEnabled {
		router.Use(otelgin.Middleware(cfg.ServiceName))
	}

	allowOrigins := cfg.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	if cfg.StaticFilesRoot != "" {
		router.Static("/files", cfg.StaticFilesRoot)
	}

	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.Identity())
	{
		api.POST("/convert", cfg.ConversionHandler.Convert)
		api.GET("/conversions", cfg.ConversionHandler.History)
		api.GET("/conversions/:id", cfg.ConversionHandler.Get)
		api.GET("/conversions/:id/markdown", cfg.ConversionHandler.DownloadMarkdown)
		api.DELETE("/conversions/:id", cfg.ConversionHandler.Delete)
		api.POST("/conversions/:id/reanalyze-links", cfg.ConversionHandler.ReanalyzeLinks)
	}

	return router
}
