package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/callscope/callscope/pkg/version"
	"github.com/callscope/callscope/pkg/warehouse"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version"`
	Warehouse *warehouse.HealthStatus `json:"warehouse,omitempty"`
}

// healthHandler handles GET /health. Only the warehouse is checked:
// provider APIs and the LLM are excluded so an external outage does not
// make the orchestrator restart a healthy process.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := healthStatusHealthy
	httpStatus := http.StatusOK

	var wh *warehouse.HealthStatus
	if s.deps.DB != nil {
		var err error
		wh, err = warehouse.Health(reqCtx, s.deps.DB.DB())
		if err != nil {
			status = healthStatusUnhealthy
			httpStatus = http.StatusServiceUnavailable
		}
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:    status,
		Version:   version.Full(),
		Warehouse: wh,
	})
}
