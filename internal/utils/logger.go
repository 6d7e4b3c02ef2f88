// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"hamlink/internal/config"
)

// defaultLogFile is used when output names neither stream nor file
const defaultLogFile = "./logs/hamlink.log"

// NewLogger builds the process logger from the logging section. Output is
// "stdout", "stderr" or a file path rotated by lumberjack.
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	sink, err := logSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	core := zapcore.NewCore(logEncoder(cfg.Format), sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// logEncoder returns a JSON encoder, or a colored console one for
// interactive use
func logEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeCaller = zapcore.ShortCallerEncoder

	if format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		return zapcore.NewConsoleEncoder(ec)
	}
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return zapcore.NewJSONEncoder(ec)
}

func logSink(cfg *config.LoggingConfig) (zapcore.WriteSyncer, error) {
	switch cfg.Output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}

	path := cfg.Output
	if path == "" {
		path = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("log directory: %w", err)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}), nil
}

// DeviceLogger tags every entry with the port and family of one session
type DeviceLogger struct {
	*zap.Logger
}

// NewDeviceLogger returns a logger for the device on port
func NewDeviceLogger(base *zap.Logger, port, deviceType, brand string) *DeviceLogger {
	return &DeviceLogger{Logger: base.With(
		zap.String("port", port),
		zap.String("device_type", deviceType),
		zap.String("brand", brand),
		zap.String("component", "device"),
	)}
}

// LogOperation logs device operation with context
func (dl *DeviceLogger) LogOperation(operationType, operationID string, duration time.Duration, success bool, err error) {
	fields := []zap.Field{
		zap.String("operation_type", operationType),
		zap.String("operation_id", operationID),
		zap.Duration("duration", duration),
		zap.Bool("success", success),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		dl.Error("Device operation failed", fields...)
	} else {
		dl.Info("Device operation completed", fields...)
	}
}

// LogConnection logs connection events
func (dl *DeviceLogger) LogConnection(action string, success bool, err error) {
	fields := []zap.Field{
		zap.String("action", action),
		zap.Bool("success", success),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		dl.Error("Device connection event", fields...)
	} else {
		dl.Info("Device connection event", fields...)
	}
}

// LogTransaction logs one request/response exchange at debug level
func (dl *DeviceLogger) LogTransaction(attempt int, command, reply string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.Int("attempt", attempt),
		zap.String("command", command),
		zap.Duration("duration", duration),
	}
	if reply != "" {
		fields = append(fields, zap.String("reply", reply))
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		dl.Warn("Device transaction failed", fields...)
	} else {
		dl.Debug("Device transaction", fields...)
	}
}

// OperationLogger provides structured logging for operations
type OperationLogger struct {
	logger    *zap.Logger
	startTime time.Time
}

// NewOperationLogger creates an operation-specific logger
func NewOperationLogger(baseLogger *zap.Logger, operationType, operationID string) *OperationLogger {
	logger := baseLogger.With(
		zap.String("operation_type", operationType),
		zap.String("operation_id", operationID),
		zap.String("component", "operation"),
	)

	return &OperationLogger{
		logger:    logger,
		startTime: time.Now(),
	}
}

// Start logs operation start
func (ol *OperationLogger) Start(fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Time("start_time", ol.startTime),
	}, fields...)

	ol.logger.Info("Operation started", allFields...)
}

// Success logs successful operation completion
func (ol *OperationLogger) Success(fields ...zap.Field) {
	duration := time.Since(ol.startTime)
	allFields := append([]zap.Field{
		zap.Duration("duration", duration),
		zap.Bool("success", true),
	}, fields...)

	ol.logger.Info("Operation completed successfully", allFields...)
}

// Error logs operation failure
func (ol *OperationLogger) Error(err error, fields ...zap.Field) {
	duration := time.Since(ol.startTime)
	allFields := append([]zap.Field{
		zap.Duration("duration", duration),
		zap.Bool("success", false),
		zap.Error(err),
	}, fields...)

	ol.logger.Error("Operation failed", allFields...)
}

// ServiceLogger provides service-level logging functionality
type ServiceLogger struct {
	*zap.Logger
	serviceName string
}

// NewServiceLogger creates a service-specific logger
func NewServiceLogger(baseLogger *zap.Logger, serviceName string) *ServiceLogger {
	logger := baseLogger.With(
		zap.String("service", serviceName),
		zap.String("component", "service"),
	)

	return &ServiceLogger{
		Logger:      logger,
		serviceName: serviceName,
	}
}

// LogServiceStart logs service startup
func (sl *ServiceLogger) LogServiceStart(version string, config interface{}) {
	sl.Info("Service starting",
		zap.String("version", version),
		zap.Any("config", config),
	)
}

// LogServiceStop logs service shutdown
func (sl *ServiceLogger) LogServiceStop(reason string) {
	sl.Info("Service stopping",
		zap.String("reason", reason),
	)
}

// LogAPIRequest logs HTTP API requests
func (sl *ServiceLogger) LogAPIRequest(method, path, userAgent, clientIP string, statusCode int, duration time.Duration) {
	level := zapcore.InfoLevel
	if statusCode >= 400 {
		level = zapcore.WarnLevel
	}
	if statusCode >= 500 {
		level = zapcore.ErrorLevel
	}

	if ce := sl.Check(level, "API request"); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("path", path),
			zap.String("user_agent", userAgent),
			zap.String("client_ip", clientIP),
			zap.Int("status_code", statusCode),
			zap.Duration("duration", duration),
		)
	}
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *zap.Logger
}

// NewAuditLogger creates an audit-specific logger
func NewAuditLogger(baseLogger *zap.Logger) *AuditLogger {
	logger := baseLogger.With(
		zap.String("component", "audit"),
	)

	return &AuditLogger{
		logger: logger,
	}
}

// LogSessionOpened records a device session being opened
func (al *AuditLogger) LogSessionOpened(sessionID, brand, model, port, clientIP string, success bool) {
	al.logger.Info("Device session opened",
		zap.String("session_id", sessionID),
		zap.String("brand", brand),
		zap.String("model", model),
		zap.String("port", port),
		zap.String("client_ip", clientIP),
		zap.Bool("success", success),
		zap.String("action", "open_session"),
	)
}

// LogSessionClosed records a device session being closed
func (al *AuditLogger) LogSessionClosed(sessionID, reason string) {
	al.logger.Info("Device session closed",
		zap.String("session_id", sessionID),
		zap.String("reason", reason),
		zap.String("action", "close_session"),
	)
}

// Helper functions for common logging patterns

// LoggerWithRequestID adds request ID to logger
func LoggerWithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}

// CloseLogger flushes buffered log entries
func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
