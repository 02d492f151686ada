package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/dealscout/jobs"
	"github.com/use-agent/dealscout/models"
)

// Results returns a handler for GET /api/results/:tab.
func Results(m *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := m.Results(c.Param("tab"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

// Progress returns a handler for GET /api/progress/:tab.
func Progress(m *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := m.Progress(c.Param("tab"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// Start returns a handler for POST /api/start/:tab.
//
// Body: {"games": "Title A\nTitle B", "workers": 3}. Responds 409 when the
// tab already runs a job and 400 when no titles remain after trimming.
func Start(m *jobs.Manager, defaultWorkers int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.StartRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
				return
			}
		}
		req.Defaults(defaultWorkers)

		job, err := m.Start(c.Param("tab"), req.Games, req.Workers)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.StartResponse{
			Status:  "started",
			Tab:     job.Tab,
			Total:   job.Total,
			Workers: job.Workers,
		})
	}
}

// Stop returns a handler for POST /api/stop/:tab.
func Stop(m *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := m.Stop(c.Param("tab")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.StopResponse{Status: "stop_requested"})
	}
}

// Status returns a handler for GET /api/status/:tab.
func Status(m *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		running, err := m.Status(c.Param("tab"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.StatusResponse{Running: running})
	}
}

// ClearResults returns a handler for POST /api/clear-results/:tab.
func ClearResults(m *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := m.Clear(c.Param("tab")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ClearResponse{Status: "cleared"})
	}
}

// DeleteResult returns a handler for POST /api/delete-result/:tab.
func DeleteResult(m *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.DeleteResultRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
				return
			}
		}

		remaining, err := m.DeleteResult(c.Param("tab"), req.SearchName)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.DeleteResultResponse{Status: "deleted", Remaining: remaining})
	}
}
