package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/dealscout/api/handler"
	"github.com/use-agent/dealscout/api/middleware"
	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/jobs"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work. ctx bounds the
// rate limiter's background cleanup.
func NewRouter(ctx context.Context, m *jobs.Manager, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	api := r.Group("/api")
	api.GET("/health", handler.Health(m, cfg.Browser.Driver, startTime))

	protected := api.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	protected.GET("/results/:tab", handler.Results(m))
	protected.GET("/progress/:tab", handler.Progress(m))
	protected.GET("/progress-stream/:tab", handler.ProgressStream(m, cfg.Jobs.StreamInterval, cfg.Jobs.StreamMaxDuration))
	protected.GET("/status/:tab", handler.Status(m))
	protected.GET("/history/:tab", handler.History(m, cfg.Archive.HistoryLimit))

	protected.POST("/start/:tab", handler.Start(m, cfg.Worker.DefaultWorkers))
	protected.POST("/stop/:tab", handler.Stop(m))
	protected.POST("/clear-results/:tab", handler.ClearResults(m))
	protected.POST("/delete-result/:tab", handler.DeleteResult(m))

	return r
}
