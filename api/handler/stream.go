package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/use-agent/dealscout/jobs"
	"github.com/use-agent/dealscout/models"
)

// staleLimit is the number of unchanged polls after which a stream of an
// idle tab is closed.
const staleLimit = 10

// ProgressStream returns a handler for GET /api/progress-stream/:tab.
//
// It polls the tab's progress every interval and sends a "data: <json>"
// frame whenever the snapshot changes. The stream ends after a terminal
// snapshot, after staleLimit unchanged polls while no job runs, when the
// client goes away, or after maxDuration.
func ProgressStream(m *jobs.Manager, interval, maxDuration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		tab := c.Param("tab")
		if _, err := m.Status(tab); err != nil {
			respondError(c, err)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		deadline := time.NewTimer(maxDuration)
		defer deadline.Stop()

		var (
			last  []byte
			stale int
		)
		for {
			p, err := m.Progress(tab)
			switch {
			case err != nil:
				slog.Warn("progress stream read", "tab", tab, "error", err)
				stale++
			case p.Status == models.StatusIdle:
				stale++
			default:
				data, _ := json.Marshal(p)
				if bytes.Equal(data, last) {
					stale++
					break
				}
				last, stale = data, 0
				c.Render(-1, sse.Event{Data: string(data)})
				c.Writer.Flush()
				if p.Status.Terminal() {
					return
				}
			}

			if stale > staleLimit {
				if running, _ := m.Status(tab); !running {
					return
				}
			}

			select {
			case <-c.Request.Context().Done():
				return
			case <-deadline.C:
				return
			case <-ticker.C:
			}
		}
	}
}
