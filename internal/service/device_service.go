// internal/service/device_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hamlink/internal/caps"
	"hamlink/internal/config"
	internalDriver "hamlink/internal/driver"
	"hamlink/internal/driver/dispatch"
	"hamlink/internal/model"
	"hamlink/internal/protocol"
	"hamlink/internal/session"
	"hamlink/internal/utils"
	"hamlink/pkg/driver"
)

// TransportFactory builds the transport for a session
type TransportFactory func(desc *caps.Descriptor, cfg map[string]interface{}, logger *zap.Logger) (protocol.Transport, error)

// EventPublisher receives device events
type EventPublisher interface {
	Publish(event model.DeviceEvent)
}

// DeviceService owns the open device sessions. Every driver call on a
// session is serialized by that session's mutex.
type DeviceService struct {
	registry     *internalDriver.Registry
	config       *config.Config
	publisher    EventPublisher
	newTransport TransportFactory
	baseLogger   *zap.Logger
	logger       *utils.ServiceLogger
	auditLogger  *utils.AuditLogger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*deviceSession
}

type deviceSession struct {
	// mu serializes device I/O and is held for a whole transaction
	mu sync.Mutex

	// state guards device and is never held across I/O
	state  sync.Mutex
	device *model.Device
	driver driver.DeviceDriver
	sess   *session.Session
}

// NewDeviceService creates a new device service instance
func NewDeviceService(
	registry *internalDriver.Registry,
	config *config.Config,
	publisher EventPublisher,
	logger *zap.Logger,
) *DeviceService {
	return &DeviceService{
		registry:     registry,
		config:       config,
		publisher:    publisher,
		newTransport: protocol.CreateTransport,
		baseLogger:   logger,
		logger:       utils.NewServiceLogger(logger, "device-service"),
		auditLogger:  utils.NewAuditLogger(logger),
		sessions:     make(map[uuid.UUID]*deviceSession),
	}
}

// WithTransportFactory replaces the serial transport factory
func (ds *DeviceService) WithTransportFactory(f TransportFactory) *DeviceService {
	ds.newTransport = f
	return ds
}

// Registry returns the driver registry
func (ds *DeviceService) Registry() *internalDriver.Registry {
	return ds.registry
}

// OpenSession resolves the model, opens its transport and stores the session
func (ds *DeviceService) OpenSession(ctx context.Context, req *OpenSessionRequest) (*model.Device, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	entry, err := ds.registry.Lookup(req.Brand, req.Model)
	if err != nil {
		return nil, err
	}
	desc := entry.Descriptor

	cfg := req.connectionConfig(ds.config.Device.DefaultSerial)
	if err := protocol.ValidateConfig(desc, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", driver.ErrInvalidArgument, err)
	}

	transport, err := ds.newTransport(desc, cfg, ds.baseLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	drv, sess, err := ds.registry.CreateDriver(entry, transport, session.Options{
		Address: byte(req.Address),
		Port:    req.Port,
	})
	if err != nil {
		return nil, err
	}
	drv.SetEventHandler(&sessionEvents{publisher: ds.publisher})

	openCtx, cancel := context.WithTimeout(ctx, ds.config.Device.OperationTimeout)
	defer cancel()

	if err := drv.Open(openCtx); err != nil {
		ds.auditLogger.LogSessionOpened(sess.ID.String(), string(desc.Brand), desc.Model, req.Port, req.ClientIP, false)
		return nil, err
	}

	device := &model.Device{
		ID:               sess.ID,
		DeviceID:         req.Port,
		DeviceType:       desc.DeviceType,
		Brand:            desc.Brand,
		Model:            desc.Model,
		ConnectionType:   desc.Port,
		ConnectionConfig: model.JSONObject(cfg),
		Capabilities:     desc.Capabilities,
		Status:           model.DeviceStatusOnline,
		OpenedAt:         sess.OpenedAt(),
	}

	ds.mu.Lock()
	ds.sessions[sess.ID] = &deviceSession{device: device, driver: drv, sess: sess}
	ds.mu.Unlock()

	ds.auditLogger.LogSessionOpened(sess.ID.String(), string(desc.Brand), desc.Model, req.Port, req.ClientIP, true)
	ds.logger.Info("Device session opened",
		zap.String("session_id", sess.ID.String()),
		zap.String("model", desc.Model),
		zap.String("port", req.Port),
	)

	return snapshot(device), nil
}

// ListSessions returns open sessions ordered by open time
func (ds *DeviceService) ListSessions() []*model.Device {
	ds.mu.RLock()
	active := make([]*deviceSession, 0, len(ds.sessions))
	for _, s := range ds.sessions {
		active = append(active, s)
	}
	ds.mu.RUnlock()

	devices := make([]*model.Device, 0, len(active))
	for _, s := range active {
		devices = append(devices, s.snapshot())
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].OpenedAt.Before(devices[j].OpenedAt) })
	return devices
}

// GetSession returns the device of an open session
func (ds *DeviceService) GetSession(id uuid.UUID) (*model.Device, error) {
	s, err := ds.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

// CloseSession closes the session transport and forgets the session
func (ds *DeviceService) CloseSession(id uuid.UUID, reason string) error {
	ds.mu.Lock()
	s, ok := ds.sessions[id]
	delete(ds.sessions, id)
	ds.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, driver.ErrSessionNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.driver.Close()
	s.state.Lock()
	s.device.Status = model.DeviceStatusOffline
	s.state.Unlock()
	ds.auditLogger.LogSessionClosed(id.String(), reason)
	if err != nil {
		ds.logger.Warn("Device session closed with error",
			zap.String("session_id", id.String()),
			zap.Error(err),
		)
	}
	return err
}

// CloseAll closes every open session
func (ds *DeviceService) CloseAll(reason string) {
	ds.mu.RLock()
	ids := make([]uuid.UUID, 0, len(ds.sessions))
	for id := range ds.sessions {
		ids = append(ids, id)
	}
	ds.mu.RUnlock()

	for _, id := range ids {
		_ = ds.CloseSession(id, reason)
	}
}

// Execute runs one logical operation on a session
func (ds *DeviceService) Execute(ctx context.Context, id uuid.UUID, opType model.OperationType, data model.JSONObject) (*OperationResponse, error) {
	s, err := ds.lookup(id)
	if err != nil {
		return nil, err
	}

	operation := model.NewOperation(id, opType, data)
	opLogger := utils.NewOperationLogger(ds.logger.Logger, string(opType), operation.ID.String())
	opLogger.Start(zap.String("session_id", id.String()))

	s.mu.Lock()
	execCtx, cancel := context.WithTimeout(ctx, ds.config.Device.OperationTimeout)
	result, err := s.driver.ExecuteOperation(execCtx, operation)
	cancel()
	s.touch(err)
	s.mu.Unlock()

	operation.Complete(err)
	if err != nil {
		opLogger.Error(err)
		return nil, err
	}
	opLogger.Success(zap.Any("result", result.Data))

	if opType == model.OperationTypeGetPosition && ds.publisher != nil {
		ds.publisher.Publish(model.NewDeviceEvent(model.EventPositionUpdate, id.String(), model.JSONObject(result.Data)))
	}

	return &OperationResponse{
		OperationID:   operation.ID,
		OperationType: opType,
		Success:       true,
		Result:        result.Data,
		Duration:      result.Duration,
	}, nil
}

// Health returns transaction statistics of a session
func (ds *DeviceService) Health(id uuid.UUID) (*DeviceHealth, error) {
	s, err := ds.lookup(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.driver.GetHealthMetrics()
	device := s.snapshot()
	return &DeviceHealth{
		SessionID:   id.String(),
		HealthScore: m.HealthScore,
		Status:      string(device.Status),
		LastCheck:   device.LastActivity,
		Metrics:     m,
	}, nil
}

// Capabilities returns the descriptor and operations of a registered model
func (ds *DeviceService) Capabilities(brand model.DeviceBrand, deviceModel string) (*ModelCapabilities, error) {
	entry, err := ds.registry.Lookup(brand, deviceModel)
	if err != nil {
		return nil, err
	}
	return &ModelCapabilities{
		Descriptor: entry.Descriptor,
		Operations: dispatch.Operations(entry.Descriptor.Capabilities),
	}, nil
}

func (ds *DeviceService) lookup(id uuid.UUID) (*deviceSession, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	s, ok := ds.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, driver.ErrSessionNotFound)
	}
	return s, nil
}

// touch records activity; the caller holds s.mu
func (s *deviceSession) touch(err error) {
	now := time.Now()
	s.state.Lock()
	defer s.state.Unlock()
	s.device.LastActivity = &now
	switch {
	case err == nil:
		s.device.Status = model.DeviceStatusOnline
	case errors.Is(err, driver.ErrRetriesExhausted), errors.Is(err, driver.ErrTransportWrite), errors.Is(err, driver.ErrTransportRead):
		s.device.Status = model.DeviceStatusError
	}
}

func (s *deviceSession) snapshot() *model.Device {
	s.state.Lock()
	defer s.state.Unlock()
	return snapshot(s.device)
}

func snapshot(d *model.Device) *model.Device {
	c := *d
	c.ConnectionConfig = d.ConnectionConfig.Clone()
	return &c
}

// sessionEvents forwards driver callbacks to the event publisher
type sessionEvents struct {
	publisher EventPublisher
}

func (e *sessionEvents) publish(eventType model.EventType, sessionID string, data model.JSONObject) {
	if e.publisher != nil {
		e.publisher.Publish(model.NewDeviceEvent(eventType, sessionID, data))
	}
}

func (e *sessionEvents) OnDeviceConnected(sessionID string) {
	e.publish(model.EventDeviceConnected, sessionID, model.JSONObject{"status": string(model.DeviceStatusOnline)})
}

func (e *sessionEvents) OnDeviceDisconnected(sessionID string, reason string) {
	e.publish(model.EventDeviceDisconnected, sessionID, model.JSONObject{
		"status": string(model.DeviceStatusOffline),
		"reason": reason,
	})
}

func (e *sessionEvents) OnDeviceError(sessionID string, err error) {
	e.publish(model.EventDeviceError, sessionID, model.JSONObject{"error": err.Error()})
}

func (e *sessionEvents) OnOperationCompleted(sessionID string, operationID string, result *driver.OperationResult) {
	e.publish(model.EventOperationCompleted, sessionID, model.JSONObject{
		"operation_id": operationID,
		"duration":     result.Duration,
		"data":         result.Data,
	})
}

// Data Transfer Objects

// OpenSessionRequest represents a session open request
type OpenSessionRequest struct {
	Brand    model.DeviceBrand `json:"brand" yaml:"brand"`
	Model    string            `json:"model" yaml:"model"`
	Port     string            `json:"port" yaml:"port"`
	BaudRate int               `json:"baud_rate,omitempty" yaml:"baud_rate"`
	DataBits int               `json:"data_bits,omitempty" yaml:"data_bits"`
	StopBits int               `json:"stop_bits,omitempty" yaml:"stop_bits"`
	Parity   string            `json:"parity,omitempty" yaml:"parity"`
	Timeout  string            `json:"timeout,omitempty" yaml:"timeout"`
	Address  int               `json:"address,omitempty" yaml:"address"`
	ClientIP string            `json:"-" yaml:"-"`
}

// validate validates the open request
func (r *OpenSessionRequest) validate() error {
	var missing []string
	if r.Brand == "" {
		missing = append(missing, "brand")
	}
	if r.Model == "" {
		missing = append(missing, "model")
	}
	if r.Port == "" {
		missing = append(missing, "port")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s required: %w", strings.Join(missing, ", "), driver.ErrInvalidArgument)
	}
	if r.Address < 0 || r.Address > 255 {
		return fmt.Errorf("address %d out of range 0-255: %w", r.Address, driver.ErrInvalidArgument)
	}
	return nil
}

// connectionConfig builds the transport config. Descriptor defaults apply
// to anything neither the request nor the service config sets.
func (r *OpenSessionRequest) connectionConfig(defaults config.SerialPortConfig) map[string]interface{} {
	cfg := map[string]interface{}{"port": r.Port}
	if r.BaudRate != 0 {
		cfg["baud_rate"] = r.BaudRate
	}
	if r.DataBits != 0 {
		cfg["data_bits"] = r.DataBits
	} else if defaults.DataBits != 0 {
		cfg["data_bits"] = defaults.DataBits
	}
	if r.StopBits != 0 {
		cfg["stop_bits"] = r.StopBits
	} else if defaults.StopBits != 0 {
		cfg["stop_bits"] = defaults.StopBits
	}
	if r.Parity != "" {
		cfg["parity"] = r.Parity
	} else if defaults.Parity != "" {
		cfg["parity"] = defaults.Parity
	}
	if r.Timeout != "" {
		cfg["timeout"] = r.Timeout
	}
	return cfg
}

// OperationResponse represents operation execution response
type OperationResponse struct {
	OperationID   uuid.UUID              `json:"operation_id"`
	OperationType model.OperationType    `json:"operation_type"`
	Success       bool                   `json:"success"`
	Result        map[string]interface{} `json:"result,omitempty"`
	Duration      string                 `json:"duration"`
}

// DeviceHealth represents session health information
type DeviceHealth struct {
	SessionID   string                `json:"session_id"`
	HealthScore int                   `json:"health_score"`
	Status      string                `json:"status"`
	LastCheck   *time.Time            `json:"last_check,omitempty"`
	Metrics     *driver.HealthMetrics `json:"metrics"`
}

// ModelCapabilities is a model's descriptor with the operations it enables
type ModelCapabilities struct {
	Descriptor *caps.Descriptor      `json:"-"`
	Operations []model.OperationType `json:"operations"`
}
