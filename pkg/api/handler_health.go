package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scourlabs/scour/pkg/database"
	"github.com/scourlabs/scour/pkg/version"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string                 `json:"status"`
	Version    string                 `json:"version"`
	ActiveRuns int                    `json:"active_runs"`
	Database   *database.HealthStatus `json:"database,omitempty"`
}

// healthHandler handles GET /health. The database check runs with a short
// timeout so a stuck pool cannot hang liveness probes.
func (s *Server) healthHandler(c *gin.Context) {
	resp := HealthResponse{
		Status:     "healthy",
		Version:    version.Commit,
		ActiveRuns: s.registry.Count(),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		dbHealth, err := database.Health(ctx, s.db.Pool())
		resp.Database = dbHealth
		if err != nil {
			resp.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}
