// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"hamlink/internal/config"
	"hamlink/internal/handler"
	"hamlink/internal/middleware"
	"hamlink/internal/service"
	"hamlink/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config           *config.Config
	logger           *zap.Logger
	deviceService    *service.DeviceService
	discoveryService *service.DiscoveryService
	wsHandler        *handler.WebSocketHandler
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	deviceService *service.DeviceService,
	discoveryService *service.DiscoveryService,
	eventBus *handler.EventBus,
) *Router {
	return &Router{
		config:           config,
		logger:           logger,
		deviceService:    deviceService,
		discoveryService: discoveryService,
		wsHandler:        handler.NewWebSocketHandler(deviceService, eventBus, config, logger),
	}
}

// WebSocketHandler returns the handler whose Run loop forwards bus events
func (r *Router) WebSocketHandler() *handler.WebSocketHandler {
	return r.wsHandler
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if r.config.IsDebugEnabled() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.TestMode)
	}

	router := gin.New()
	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(utils.NewServiceLogger(r.logger, "http-server")))
	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Debug("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.deviceService, r.config, r.logger)
	deviceHandler := handler.NewDeviceHandler(r.deviceService, r.logger)
	operationHandler := handler.NewOperationHandler(r.deviceService, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.discoveryService, r.logger)

	// Probes live outside the versioned API
	healthHandler.RegisterRoutes(&router.RouterGroup)

	apiV1 := router.Group("/api/v1")
	deviceHandler.RegisterRoutes(apiV1)
	operationHandler.RegisterRoutes(apiV1)
	discoveryHandler.RegisterRoutes(apiV1)

	r.wsHandler.RegisterRoutes(router.Group("/ws"))

	if !r.config.IsProduction() {
		r.addDocumentationRoutes(router)
	}

	r.logger.Info("All routes configured successfully",
		zap.Int("routes", len(router.Routes())),
	)
}

// addDocumentationRoutes serves the API browser outside production
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
