// internal/middleware/cors_middleware.go
package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"hamlink/internal/config"
)

// CORSMiddleware creates CORS middleware. An empty allow list or "*"
// allows any origin without credentials.
func CORSMiddleware(config *config.SecurityConfig) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	allowAll := len(config.AllowedOrigins) == 0
	for _, o := range config.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
	}

	if allowAll {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	}

	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", RequestIDHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", RequestIDHeader}

	return cors.New(corsConfig)
}
