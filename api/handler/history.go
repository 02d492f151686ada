package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/dealscout/jobs"
	"github.com/use-agent/dealscout/models"
)

// History returns a handler for GET /api/history/:tab?limit=N.
func History(m *jobs.Manager, maxLimit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "limit must be a positive integer", err))
				return
			}
			limit = min(n, maxLimit)
		}

		tab := c.Param("tab")
		runs, err := m.History(c.Request.Context(), tab, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.HistoryResponse{Tab: tab, Runs: runs})
	}
}
