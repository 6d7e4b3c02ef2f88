// internal/driver/pelco/driver.go
package pelco

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"hamlink/internal/caps"
	"hamlink/internal/driver/dispatch"
	"hamlink/internal/frame"
	"hamlink/internal/model"
	"hamlink/internal/session"
	"hamlink/internal/utils"
	"hamlink/pkg/driver"
)

// Driver implements driver.RotatorDriver for Pelco-D positioners
type Driver struct {
	sess         *session.Session
	desc         *caps.Descriptor
	limits       *caps.RotatorCaps
	codec        *frame.Codec
	logger       *utils.DeviceLogger
	eventHandler driver.EventHandler
	mutex        sync.RWMutex
	deviceInfo   *driver.DeviceInfo
}

// New wraps an open session in a Pelco-D driver
func New(sess *session.Session) (*Driver, error) {
	desc := sess.Descriptor()
	if desc.Rotator == nil || sess.Codec() == nil {
		return nil, fmt.Errorf("pelco: %s is not a framed rotator", desc.Model)
	}

	return &Driver{
		sess:   sess,
		desc:   desc,
		limits: desc.Rotator,
		codec:  sess.Codec(),
		logger: sess.Logger(),
		deviceInfo: &driver.DeviceInfo{
			SessionID:      sess.ID.String(),
			Brand:          desc.Brand,
			Model:          desc.Model,
			DeviceType:     desc.DeviceType,
			Manufacturer:   desc.Manufacturer,
			Version:        desc.Version,
			Status:         string(desc.Status),
			Port:           sess.Options().Port,
			Capabilities:   desc.Capabilities,
			ConnectionType: desc.Port,
		},
	}, nil
}

// Open opens the session transport
func (d *Driver) Open(ctx context.Context) error {
	if err := d.sess.Open(ctx); err != nil {
		d.notifyError(err)
		return fmt.Errorf("failed to open %s: %w", d.desc.Model, err)
	}
	d.notifyConnected()
	return nil
}

// Close closes the session transport
func (d *Driver) Close() error {
	err := d.sess.Close()
	d.notifyDisconnected("closed")
	return err
}

// IsOpen returns connection status
func (d *Driver) IsOpen() bool {
	return d.sess.Transport().IsOpen()
}

// GetDeviceInfo returns device information
func (d *Driver) GetDeviceInfo() *driver.DeviceInfo {
	return d.deviceInfo
}

// GetCapabilities returns the descriptor's capabilities
func (d *Driver) GetCapabilities() []model.Capability {
	return d.desc.Capabilities
}

// GetHealthMetrics returns transaction statistics of the session
func (d *Driver) GetHealthMetrics() *driver.HealthMetrics {
	return d.sess.HealthMetrics()
}

// SetEventHandler sets the event handler
func (d *Driver) SetEventHandler(handler driver.EventHandler) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.eventHandler = handler
}

// ExecuteOperation executes a device operation
func (d *Driver) ExecuteOperation(ctx context.Context, operation *model.DeviceOperation) (*driver.OperationResult, error) {
	startTime := time.Now()
	result, err := dispatch.Execute(ctx, d, operation)
	d.logger.LogOperation(string(operation.OperationType), operation.ID.String(), time.Since(startTime), err == nil, err)

	if err != nil {
		d.notifyError(err)
		return nil, err
	}
	d.notifyCompleted(operation.ID.String(), result)
	return result, nil
}

// SetPosition moves to azimuth then elevation. Both frames are built
// before any I/O so an invalid elevation does not move the azimuth.
func (d *Driver) SetPosition(ctx context.Context, azimuth, elevation float64) error {
	if azimuth < d.limits.MinAz || azimuth > d.limits.MaxAz {
		return fmt.Errorf("azimuth %.2f outside [%.0f, %.0f]: %w", azimuth, d.limits.MinAz, d.limits.MaxAz, driver.ErrInvalidArgument)
	}
	if elevation < d.limits.MinEl || elevation > d.limits.MaxEl {
		return fmt.Errorf("elevation %.2f outside [%.0f, %.0f]: %w", elevation, d.limits.MinEl, d.limits.MaxEl, driver.ErrInvalidArgument)
	}

	azFrame, err := d.codec.EncodeValue(d.limits.Opcodes.SetAzimuth, azimuth)
	if err != nil {
		return fmt.Errorf("azimuth: %w", err)
	}
	elFrame, err := d.codec.EncodeValue(d.limits.Opcodes.SetElevation, elevation)
	if err != nil {
		return fmt.Errorf("elevation: %w", err)
	}

	d.logger.Debug("Set position", zap.Float64("azimuth", azimuth), zap.Float64("elevation", elevation))

	if _, err := d.sess.Transact(ctx, azFrame, 0); err != nil {
		return fmt.Errorf("set azimuth: %w", err)
	}
	if _, err := d.sess.Transact(ctx, elFrame, 0); err != nil {
		return fmt.Errorf("set elevation: %w", err)
	}
	return nil
}

// GetPosition queries the axis that is due and returns it together with
// the cached value of the other axis.
func (d *Driver) GetPosition(ctx context.Context) (driver.Position, error) {
	poller := d.sess.Poller()
	axis := poller.Due()

	query, expect := d.limits.Opcodes.QueryAzimuth, d.limits.Opcodes.AzimuthReply
	if axis == session.AxisElevation {
		query, expect = d.limits.Opcodes.QueryElevation, d.limits.Opcodes.ElevationReply
	}

	reply, err := d.sess.Query(ctx, d.codec.Encode(query, 0))
	if err != nil {
		return driver.Position{}, fmt.Errorf("query %s: %w", axis, err)
	}

	fresh := reply.Opcode == expect
	if !fresh {
		d.logger.Debug("Discarding reply for another query",
			zap.String("axis", axis.String()),
			zap.Uint8("opcode", reply.Opcode),
			zap.Uint8("expected", expect),
		)
	}

	az, el := poller.Complete(axis, reply.Value, fresh)
	return driver.Position{Azimuth: az, Elevation: el}, nil
}

// Stop halts any motion
func (d *Driver) Stop(ctx context.Context) error {
	if _, err := d.sess.Transact(ctx, d.codec.Encode(d.limits.Opcodes.Stop, 0), 0); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// Park moves to the home position
func (d *Driver) Park(ctx context.Context) error {
	return d.SetPosition(ctx, 0, 0)
}

// Move starts a continuous move. Pan speed goes in data 1, tilt speed in
// data 2.
func (d *Driver) Move(ctx context.Context, direction driver.MoveDirection, speed int) error {
	if speed < d.limits.SpeedMin || speed > d.limits.SpeedMax {
		return fmt.Errorf("speed %d outside [%d, %d]: %w", speed, d.limits.SpeedMin, d.limits.SpeedMax, driver.ErrInvalidArgument)
	}

	var cmd frame.Frame
	// Pelco-D: data 1 is pan speed, data 2 is tilt speed
	switch direction {
	case driver.MoveUp:
		cmd = d.codec.EncodeBytes(d.limits.Opcodes.Up, 0, byte(speed))
	case driver.MoveDown:
		cmd = d.codec.EncodeBytes(d.limits.Opcodes.Down, 0, byte(speed))
	case driver.MoveLeft:
		cmd = d.codec.EncodeBytes(d.limits.Opcodes.Left, byte(speed), 0)
	case driver.MoveRight:
		cmd = d.codec.EncodeBytes(d.limits.Opcodes.Right, byte(speed), 0)
	default:
		return fmt.Errorf("direction %q: %w", direction, driver.ErrInvalidArgument)
	}

	if _, err := d.sess.Transact(ctx, cmd, 0); err != nil {
		return fmt.Errorf("move %s: %w", direction, err)
	}
	return nil
}

// Reset has no wire command on Pelco-D. It validates the mode and clears
// the polling state.
func (d *Driver) Reset(ctx context.Context, mode driver.ResetType) error {
	if mode != driver.ResetAll {
		return fmt.Errorf("reset mode %q: %w", mode, driver.ErrInvalidArgument)
	}
	d.sess.Poller().Reset()
	return nil
}

func (d *Driver) handler() driver.EventHandler {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.eventHandler
}

func (d *Driver) notifyConnected() {
	if h := d.handler(); h != nil {
		h.OnDeviceConnected(d.deviceInfo.SessionID)
	}
}

func (d *Driver) notifyDisconnected(reason string) {
	if h := d.handler(); h != nil {
		h.OnDeviceDisconnected(d.deviceInfo.SessionID, reason)
	}
}

func (d *Driver) notifyError(err error) {
	if h := d.handler(); h != nil {
		h.OnDeviceError(d.deviceInfo.SessionID, err)
	}
}

func (d *Driver) notifyCompleted(operationID string, result *driver.OperationResult) {
	if h := d.handler(); h != nil {
		h.OnOperationCompleted(d.deviceInfo.SessionID, operationID, result)
	}
}

var _ driver.RotatorDriver = (*Driver)(nil)
