// internal/middleware/logging_middleware.go
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"hamlink/internal/utils"
)

// LoggingMiddleware logs every request except probes
func LoggingMiddleware(logger *utils.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if isProbe(path) && c.Writer.Status() < 400 {
			return
		}

		reqLogger := logger
		if id := c.GetString(requestIDKey); id != "" {
			reqLogger = utils.NewServiceLogger(utils.LoggerWithRequestID(logger.Logger, id), "http")
		}
		reqLogger.LogAPIRequest(
			c.Request.Method,
			path,
			c.Request.UserAgent(),
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(startTime),
		)
	}
}

func isProbe(path string) bool {
	return strings.HasSuffix(path, "/live") || strings.HasSuffix(path, "/ready")
}
