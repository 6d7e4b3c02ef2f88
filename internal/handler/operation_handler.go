// internal/handler/operation_handler.go
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hamlink/internal/model"
	"hamlink/internal/service"
	"hamlink/internal/utils"
)

// OperationHandler runs logical operations on open sessions
type OperationHandler struct {
	deviceService *service.DeviceService
	logger        *utils.ServiceLogger
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(deviceService *service.DeviceService, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{
		deviceService: deviceService,
		logger:        utils.NewServiceLogger(logger, "operation-handler"),
	}
}

// RegisterRoutes registers the generic operation route and the per-family
// shortcuts
func (h *OperationHandler) RegisterRoutes(router *gin.RouterGroup) {
	ops := router.Group("/sessions/:id")
	{
		ops.POST("/operations", h.ExecuteOperation)

		// rotator
		ops.PUT("/position", h.SetPosition)
		ops.GET("/position", h.simple(model.OperationTypeGetPosition))
		ops.POST("/stop", h.simple(model.OperationTypeStop))
		ops.POST("/park", h.simple(model.OperationTypePark))
		ops.POST("/move", h.Move)
		ops.POST("/reset", h.Reset)

		// rig
		ops.PUT("/frequency", h.SetFrequency)
		ops.GET("/frequency", h.simple(model.OperationTypeGetFrequency))
		ops.PUT("/mode", h.SetMode)
		ops.GET("/mode", h.simple(model.OperationTypeGetMode))
		ops.PUT("/levels/:level", h.SetLevel)
		ops.GET("/levels/:level", h.GetLevel)
		ops.PUT("/ptt", h.SetPTT)
		ops.GET("/ptt", h.simple(model.OperationTypeGetPTT))
	}
}

// ExecuteOperation runs any operation by type
// @Summary Execute operation
// @Description Run a logical operation such as SET_POSITION or SET_FREQUENCY on a session
// @Tags Operations
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body OperationRequest true "Operation request"
// @Success 200 {object} utils.APIResponse{data=service.OperationResponse} "Operation completed"
// @Failure 400 {object} utils.APIResponse "Invalid argument"
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Failure 501 {object} utils.APIResponse "Operation not supported"
// @Failure 504 {object} utils.APIResponse "Device did not answer"
// @Router /sessions/{id}/operations [post]
func (h *OperationHandler) ExecuteOperation(c *gin.Context) {
	var req OperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(c, model.OperationType(strings.ToUpper(req.OperationType)), req.OperationData)
}

// SetPosition points a rotator
// @Summary Set rotator position
// @Tags Rotator
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body PositionRequest true "Target position"
// @Success 200 {object} utils.APIResponse{data=service.OperationResponse}
// @Router /sessions/{id}/position [put]
func (h *OperationHandler) SetPosition(c *gin.Context) {
	var req PositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(c, model.OperationTypeSetPosition, model.JSONObject{
		"azimuth":   *req.Azimuth,
		"elevation": *req.Elevation,
	})
}

// Move starts a continuous move
func (h *OperationHandler) Move(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(c, model.OperationTypeMove, model.JSONObject{
		"direction": req.Direction,
		"speed":     req.Speed,
	})
}

// Reset resets a rotator. An empty body resets everything.
func (h *OperationHandler) Reset(c *gin.Context) {
	var req ResetRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	data := model.JSONObject{}
	if req.Mode != "" {
		data["mode"] = req.Mode
	}
	h.execute(c, model.OperationTypeReset, data)
}

// SetFrequency tunes a rig
// @Summary Set rig frequency
// @Tags Rig
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body FrequencyRequest true "Frequency in Hz"
// @Success 200 {object} utils.APIResponse{data=service.OperationResponse}
// @Router /sessions/{id}/frequency [put]
func (h *OperationHandler) SetFrequency(c *gin.Context) {
	var req FrequencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(c, model.OperationTypeSetFrequency, model.JSONObject{"frequency": *req.Frequency})
}

// SetMode sets the rig mode
func (h *OperationHandler) SetMode(c *gin.Context) {
	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(c, model.OperationTypeSetMode, model.JSONObject{"mode": req.Mode})
}

// SetLevel sets a normalized rig level
func (h *OperationHandler) SetLevel(c *gin.Context) {
	var req LevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(c, model.OperationTypeSetLevel, model.JSONObject{
		"level": strings.ToUpper(c.Param("level")),
		"value": *req.Value,
	})
}

// GetLevel reads a rig level
func (h *OperationHandler) GetLevel(c *gin.Context) {
	h.execute(c, model.OperationTypeGetLevel, model.JSONObject{"level": strings.ToUpper(c.Param("level"))})
}

// SetPTT keys or unkeys the transmitter
func (h *OperationHandler) SetPTT(c *gin.Context) {
	var req PTTRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(c, model.OperationTypeSetPTT, model.JSONObject{"ptt": *req.PTT})
}

// simple builds a handler for operations without arguments
func (h *OperationHandler) simple(opType model.OperationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.execute(c, opType, nil)
	}
}

func (h *OperationHandler) execute(c *gin.Context, opType model.OperationType, data model.JSONObject) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	response, err := h.deviceService.Execute(c.Request.Context(), id, opType, data)
	if err != nil {
		h.logger.Error("Operation failed",
			zap.Error(err),
			zap.String("session_id", id.String()),
			zap.String("operation_type", string(opType)),
		)
		utils.DriverErrorResponse(c, "Operation failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Operation executed successfully", response)
}

// Request DTOs

// OperationRequest is the body of the generic operation route
type OperationRequest struct {
	OperationType string           `json:"operation_type" binding:"required"`
	OperationData model.JSONObject `json:"operation_data"`
}

// PositionRequest represents a rotator target
type PositionRequest struct {
	Azimuth   *float64 `json:"azimuth" binding:"required"`
	Elevation *float64 `json:"elevation" binding:"required"`
}

// MoveRequest represents a continuous move
type MoveRequest struct {
	Direction string `json:"direction" binding:"required"`
	Speed     int    `json:"speed" binding:"required"`
}

// ResetRequest represents a reset
type ResetRequest struct {
	Mode string `json:"mode,omitempty"`
}

// FrequencyRequest represents a frequency in Hz
type FrequencyRequest struct {
	Frequency *float64 `json:"frequency" binding:"required"`
}

// ModeRequest represents a rig mode
type ModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// LevelRequest represents a normalized level value
type LevelRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

// PTTRequest represents a PTT state
type PTTRequest struct {
	PTT *bool `json:"ptt" binding:"required"`
}
