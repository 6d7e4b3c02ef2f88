// internal/handler/device_handler.go
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"hamlink/internal/model"
	"hamlink/internal/service"
	"hamlink/internal/utils"
)

// DeviceHandler handles device sessions and model capabilities
type DeviceHandler struct {
	deviceService *service.DeviceService
	logger        *utils.ServiceLogger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
		logger:        utils.NewServiceLogger(logger, "device-handler"),
	}
}

// RegisterRoutes registers session and model routes
func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/sessions")
	{
		sessions.POST("", h.OpenSession)
		sessions.GET("", h.ListSessions)

		sessionRoutes := sessions.Group("/:id")
		{
			sessionRoutes.GET("", h.GetSession)
			sessionRoutes.DELETE("", h.CloseSession)
			sessionRoutes.GET("/health", h.GetSessionHealth)
		}
	}

	router.GET("/models/:brand/:model/caps", h.GetModelCapabilities)
}

// OpenSession opens a device session
// @Summary Open a device session
// @Description Resolve the model, open its serial port and start a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body service.OpenSessionRequest true "Session open request"
// @Success 201 {object} utils.APIResponse{data=model.Device} "Session opened"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 501 {object} utils.APIResponse "Model not supported"
// @Router /sessions [post]
func (h *DeviceHandler) OpenSession(c *gin.Context) {
	var req service.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.Brand = model.DeviceBrand(strings.ToUpper(string(req.Brand)))
	req.ClientIP = c.ClientIP()

	device, err := h.deviceService.OpenSession(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to open session",
			zap.Error(err),
			zap.String("brand", string(req.Brand)),
			zap.String("model", req.Model),
			zap.String("port", req.Port),
		)
		utils.DriverErrorResponse(c, "Failed to open session", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Session opened successfully", device)
}

// ListSessions lists open sessions
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{sessions=[]model.Device,total=int}} "Sessions retrieved"
// @Router /sessions [get]
func (h *DeviceHandler) ListSessions(c *gin.Context) {
	sessions := h.deviceService.ListSessions()
	utils.SuccessResponse(c, http.StatusOK, "Sessions retrieved successfully", gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// GetSession retrieves a session by ID
// @Summary Get session details
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} utils.APIResponse{data=model.Device} "Session retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid session ID"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Router /sessions/{id} [get]
func (h *DeviceHandler) GetSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	device, err := h.deviceService.GetSession(id)
	if err != nil {
		utils.DriverErrorResponse(c, "Session not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Session retrieved successfully", device)
}

// CloseSession closes a session
// @Summary Close session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} utils.APIResponse "Session closed"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Router /sessions/{id} [delete]
func (h *DeviceHandler) CloseSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	if err := h.deviceService.CloseSession(id, "closed by client"); err != nil {
		h.logger.Error("Failed to close session", zap.Error(err), zap.String("session_id", id.String()))
		utils.DriverErrorResponse(c, "Failed to close session", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Session closed successfully", gin.H{"session_id": id})
}

// GetSessionHealth retrieves session transaction statistics
// @Summary Get session health
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} utils.APIResponse{data=service.DeviceHealth} "Session health retrieved"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Router /sessions/{id}/health [get]
func (h *DeviceHandler) GetSessionHealth(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	health, err := h.deviceService.Health(id)
	if err != nil {
		utils.DriverErrorResponse(c, "Failed to get session health", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Session health retrieved successfully", health)
}

// GetModelCapabilities dumps a model's capability descriptor
// @Summary Dump model capabilities
// @Description JSON by default, YAML with format=yaml
// @Tags Models
// @Produce json
// @Param brand path string true "Brand"
// @Param model path string true "Model"
// @Param format query string false "Output format" Enums(json, yaml) default(json)
// @Success 200 {object} utils.APIResponse "Capabilities retrieved"
// @Failure 501 {object} utils.APIResponse "Model not supported"
// @Router /models/{brand}/{model}/caps [get]
func (h *DeviceHandler) GetModelCapabilities(c *gin.Context) {
	mc, err := h.deviceService.Capabilities(model.DeviceBrand(c.Param("brand")), c.Param("model"))
	if err != nil {
		utils.DriverErrorResponse(c, "Model not supported", err)
		return
	}

	view, err := mc.Descriptor.MarshalYAML()
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to render capabilities", err)
		return
	}

	if strings.EqualFold(c.Query("format"), "yaml") {
		c.YAML(http.StatusOK, view)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Capabilities retrieved successfully", gin.H{
		"caps":       view,
		"operations": mc.Operations,
	})
}

// sessionID parses the :id path parameter and writes a 400 on failure
func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID", err)
		return uuid.Nil, false
	}
	return id, true
}
