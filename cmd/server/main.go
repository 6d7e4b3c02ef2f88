// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hamlink/internal/config"
	"hamlink/internal/driver"
	"hamlink/internal/handler"
	"hamlink/internal/model"
	"hamlink/internal/routes"
	"hamlink/internal/service"
	"hamlink/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	// Services
	deviceService    *service.DeviceService
	discoveryService *service.DiscoveryService
	eventBus         *handler.EventBus
	router           *routes.Router

	// Driver registry
	driverRegistry *driver.Registry

	// cancels the event bus and websocket loops
	stopBackground context.CancelFunc
}

// @title hamlink API
// @version 1.0.0
// @description Rotator and rig control over serial ports
// @BasePath /api/v1
func main() {
	configPath := flag.String("config", os.Getenv("HAMLINK_CONFIG"), "path to config file")
	flag.Parse()

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "hamlink")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDriverRegistry(); err != nil {
		return nil, fmt.Errorf("failed to initialize driver registry: %w", err)
	}

	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeDriverRegistry sets up device driver registry
func (app *Application) initializeDriverRegistry() error {
	app.driverRegistry = driver.NewRegistry(app.logger)

	if err := driver.RegisterDefaultDrivers(app.driverRegistry, app.logger); err != nil {
		return err
	}

	app.logger.Info("Driver registry initialized successfully",
		zap.Int("registered_drivers", len(app.driverRegistry.ListDrivers())),
	)
	return nil
}

// initializeServices creates service instances
func (app *Application) initializeServices() {
	app.eventBus = handler.NewEventBus(app.logger)

	app.deviceService = service.NewDeviceService(
		app.driverRegistry,
		app.config,
		app.eventBus,
		app.logger,
	)

	app.discoveryService = service.NewDiscoveryService(app.driverRegistry, app.logger)

	app.logger.Info("Services initialized successfully")
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	app.router = routes.NewRouter(
		app.config,
		app.logger,
		app.deviceService,
		app.discoveryService,
		app.eventBus,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      app.router.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)
}

// startBackgroundServices starts the event loops and opens configured devices
func (app *Application) startBackgroundServices() {
	ctx, cancel := context.WithCancel(context.Background())
	app.stopBackground = cancel

	go app.eventBus.Start(ctx)
	go app.router.WebSocketHandler().Run(ctx)

	app.openConfiguredDevices(ctx)

	app.logger.Info("Background services started")
}

// openConfiguredDevices opens the sessions listed in the config. A device
// that fails to open is logged and skipped.
func (app *Application) openConfiguredDevices(ctx context.Context) {
	for _, d := range app.config.Devices {
		device, err := app.deviceService.OpenSession(ctx, &service.OpenSessionRequest{
			Brand:    model.DeviceBrand(strings.ToUpper(d.Brand)),
			Model:    d.Model,
			Port:     d.Port,
			BaudRate: d.BaudRate,
			Address:  d.Address,
			ClientIP: "config",
		})
		if err != nil {
			app.logger.Error("Failed to open configured device",
				zap.Error(err),
				zap.String("brand", d.Brand),
				zap.String("model", d.Model),
				zap.String("port", d.Port),
			)
			continue
		}
		app.logger.Info("Configured device opened",
			zap.String("session_id", device.ID.String()),
			zap.String("model", device.Model),
			zap.String("port", d.Port),
		)
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown stops the server, then closes every session so serial ports
// are released
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "hamlink")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if app.stopBackground != nil {
		app.stopBackground()
	}

	app.deviceService.CloseAll("shutdown")
	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Fprintf(os.Stderr, "Logger close error: %v\n", err)
	}
}

// Start serves HTTP until a shutdown signal arrives
func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices()
	app.waitForShutdown()

	return nil
}
