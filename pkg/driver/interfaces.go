// pkg/driver/interfaces.go
package driver

import (
	"context"

	"hamlink/internal/model"
)

// DeviceDriver is the main interface that all hardware drivers must implement
type DeviceDriver interface {
	// Connection management
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Device information
	GetDeviceInfo() *DeviceInfo
	GetCapabilities() []model.Capability

	// Operations
	ExecuteOperation(ctx context.Context, operation *model.DeviceOperation) (*OperationResult, error)

	// Health and monitoring
	GetHealthMetrics() *HealthMetrics

	// Event handling
	SetEventHandler(handler EventHandler)
}

// RotatorDriver extends DeviceDriver for az/el positioners
type RotatorDriver interface {
	DeviceDriver

	SetPosition(ctx context.Context, azimuth, elevation float64) error
	GetPosition(ctx context.Context) (Position, error)
	Stop(ctx context.Context) error
	Park(ctx context.Context) error
	Move(ctx context.Context, direction MoveDirection, speed int) error
	Reset(ctx context.Context, mode ResetType) error
}

// RigDriver extends DeviceDriver for transceivers
type RigDriver interface {
	DeviceDriver

	SetFrequency(ctx context.Context, hz float64) error
	GetFrequency(ctx context.Context) (float64, error)
	SetMode(ctx context.Context, mode Mode) error
	GetMode(ctx context.Context) (Mode, error)
	SetLevel(ctx context.Context, level Level, value float64) error
	GetLevel(ctx context.Context, level Level) (float64, error)
	SetPTT(ctx context.Context, on bool) error
	GetPTT(ctx context.Context) (bool, error)
}
