package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/sdlcloop/controller/pkg/database"
	"github.com/sdlcloop/controller/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. Only the controller's own components
// (database, worker pool) are checked; it never reaches out to GitHub or
// the coding-agent daemon, so an external outage never flaps the
// orchestrator's liveness probe.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if _, err := database.Health(reqCtx, s.dbClient.DB()); err != nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	var poolResp *PoolHealthResponse
	if s.workerPool != nil {
		poolHealth := s.workerPool.Health()
		if poolHealth != nil {
			poolResp = &PoolHealthResponse{
				IsHealthy:     poolHealth.IsHealthy,
				ActiveWorkers: poolHealth.ActiveWorkers,
				TotalWorkers:  poolHealth.TotalWorkers,
				ActiveLeases:  poolHealth.ActiveLeases,
				OutboxBacklog: poolHealth.OutboxBacklog,
			}
			if !poolHealth.IsHealthy {
				if status == healthStatusHealthy {
					status = healthStatusDegraded
				}
				msg := healthStatusUnhealthy
				if poolHealth.DBError != "" {
					msg = poolHealth.DBError
				}
				checks["worker_pool"] = HealthCheck{Status: healthStatusDegraded, Message: msg}
			} else {
				checks["worker_pool"] = HealthCheck{Status: healthStatusHealthy}
			}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:     status,
		Version:    version.Full(),
		Checks:     checks,
		WorkerPool: poolResp,
	})
}
