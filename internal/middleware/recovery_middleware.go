// internal/middleware/recovery_middleware.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hamlink/internal/utils"
)

// RecoveryMiddleware turns handler panics into a 500 response
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Stack("stacktrace"),
		)

		utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", nil)
		c.Abort()
	})
}
