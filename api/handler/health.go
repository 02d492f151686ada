package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/dealscout/jobs"
	"github.com/use-agent/dealscout/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/health.
func Health(m *jobs.Manager, driver string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     "healthy",
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			Driver:     driver,
			Tabs:       m.Tabs(),
			RunningJob: m.Running(),
			Version:    Version,
		})
	}
}
