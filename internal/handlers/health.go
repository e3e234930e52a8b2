package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/csahub/internal/monitoring"
)

// HealthHandler exposes the liveness and readiness probes.
type HealthHandler struct {
	manager *monitoring.HealthManager
}

// NewHealthHandler constructs the handler.
func NewHealthHandler(manager *monitoring.HealthManager) (*HealthHandler, error) {
	if manager == nil {
		return nil, errors.New("health handler: manager is required")
	}
	return &HealthHandler{manager: manager}, nil
}

// GET /health
func (h *HealthHandler) Summary(c *gin.Context) {
	report := h.manager.EvaluateReadiness(requestContext(c))
	c.JSON(healthStatus(report), gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checked_at": time.Now().UTC(),
	})
}

// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	writeHealthReport(c, h.manager.EvaluateLiveness(requestContext(c)))
}

// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	writeHealthReport(c, h.manager.EvaluateReadiness(requestContext(c)))
}

// HealthDisabled answers probe routes when health reporting is turned off.
func HealthDisabled(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}

func writeHealthReport(c *gin.Context, report monitoring.HealthReport) {
	c.JSON(healthStatus(report), gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checks":     report.Checks,
		"checked_at": time.Now().UTC(),
	})
}

func healthStatus(report monitoring.HealthReport) int {
	if report.Success {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
