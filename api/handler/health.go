package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/serpent/engine"
	"github.com/use-agent/serpent/manager"
	"github.com/use-agent/serpent/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status is "degraded" while the browser session is not started; the
// server still answers so health checks can tell the two apart.
func Health(sc Scraper, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := sc.State()
		status := "healthy"
		if state != manager.StateStarted {
			status = "degraded"
		}
		names := engine.Names()
		engines := make([]string, len(names))
		for i, n := range names {
			engines[i] = string(n)
		}
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Session: string(state),
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Engines: engines,
			Version: Version,
		})
	}
}
