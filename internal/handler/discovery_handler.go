// internal/handler/discovery_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hamlink/internal/service"
	"hamlink/internal/utils"
)

// DiscoveryHandler handles port listing and supported model requests
type DiscoveryHandler struct {
	discoveryService *service.DiscoveryService
	logger           *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(discoveryService *service.DiscoveryService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		logger:           utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	discovery := router.Group("/discovery")
	{
		discovery.GET("/ports", h.ScanPorts)
		discovery.GET("/supported", h.GetSupportedDevices)
		discovery.GET("/scanners", h.GetAvailableScanners)
	}
}

// ScanPorts lists host serial ports with any recognised USB bridge
// @Summary List serial ports
// @Description Enumerate serial ports and guess the attached radio from the USB bridge
// @Tags Discovery
// @Produce json
// @Param type query string false "Scanner type" default(all)
// @Success 200 {object} utils.APIResponse{data=object{devices_found=int,devices=[]discovery.DiscoveredDevice}} "Port scan completed"
// @Failure 500 {object} utils.APIResponse "Scan failed"
// @Router /discovery/ports [get]
func (h *DiscoveryHandler) ScanPorts(c *gin.Context) {
	scanType := c.DefaultQuery("type", "all")

	devices, err := h.discoveryService.ScanDevices(c.Request.Context(), scanType)
	if err != nil {
		h.logger.Error("Failed to scan ports", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to scan ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Port scan completed", gin.H{
		"devices_found": len(devices),
		"devices":       devices,
	})
}

// GetSupportedDevices lists registered models
// @Summary Supported models
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.SupportedDevicesResponse} "Supported models"
// @Router /discovery/supported [get]
func (h *DiscoveryHandler) GetSupportedDevices(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Supported models retrieved successfully", h.discoveryService.GetSupportedDevices())
}

// GetAvailableScanners lists registered scanner types
func (h *DiscoveryHandler) GetAvailableScanners(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Available scanners retrieved successfully", gin.H{
		"scanners": h.discoveryService.GetAvailableScanners(),
	})
}
