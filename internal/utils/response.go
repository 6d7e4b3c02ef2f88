// internal/utils/response.go
package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hamlink/pkg/driver"
)

// APIResponse represents standard API response structure
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError represents error information
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	response := APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	apiError := &APIError{
		Code:    getErrorCode(statusCode),
		Message: message,
	}

	if err != nil {
		apiError.Details = err.Error()
	}

	response := APIResponse{
		Success:   false,
		Message:   message,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// DriverErrorResponse sends an error response with the status derived
// from the driver error kind
func DriverErrorResponse(c *gin.Context, message string, err error) {
	ErrorResponse(c, StatusForError(err), message, err)
}

// StatusForError maps driver sentinel errors to HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, driver.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, driver.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, driver.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, driver.ErrRetriesExhausted), errors.Is(err, driver.ErrTransportRead):
		return http.StatusGatewayTimeout
	case errors.Is(err, driver.ErrTransportWrite), errors.Is(err, driver.ErrProtocol),
		errors.Is(err, driver.ErrChecksum), errors.Is(err, driver.ErrShortReply):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if s, ok := requestID.(string); ok {
			return s
		}
	}
	return ""
}

// getErrorCode returns error code based on HTTP status
func getErrorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	case http.StatusNotImplemented:
		return "NOT_SUPPORTED"
	case http.StatusBadGateway:
		return "DEVICE_ERROR"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case http.StatusGatewayTimeout:
		return "DEVICE_TIMEOUT"
	default:
		return "UNKNOWN_ERROR"
	}
}
