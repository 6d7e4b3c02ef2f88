// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hamlink/internal/config"
	"hamlink/internal/model"
	"hamlink/internal/service"
	"hamlink/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	deviceService *service.DeviceService
	config        *config.Config
	startedAt     time.Time
	logger        *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(deviceService *service.DeviceService, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		deviceService: deviceService,
		config:        config,
		startedAt:     time.Now(),
		logger:        utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports service status and session counts. Sessions in
// ERROR degrade the service but do not make it unhealthy.
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Service is healthy"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	sessions := h.deviceService.ListSessions()

	byStatus := make(map[string]interface{})
	for _, s := range sessions {
		n, _ := byStatus[string(s.Status)].(int)
		byStatus[string(s.Status)] = n + 1
	}

	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks: map[string]CheckResult{
			"sessions": {
				Status: "healthy",
				Data: map[string]interface{}{
					"total":     len(sessions),
					"by_status": byStatus,
				},
			},
		},
	}

	if n, _ := byStatus[string(model.DeviceStatusError)].(int); n > 0 {
		health.Status = "degraded"
		health.Checks["sessions"] = CheckResult{
			Status:  "degraded",
			Message: "one or more sessions failed their last transaction",
			Data:    health.Checks["sessions"].Data,
		}
	}

	c.JSON(http.StatusOK, health)
}

// ReadinessCheck for readiness probes
// @Summary Readiness check
// @Tags Health
// @Produce json
// @Router /ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for liveness probes
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Router /live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
