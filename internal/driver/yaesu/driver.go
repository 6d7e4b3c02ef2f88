// internal/driver/yaesu/driver.go
package yaesu

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hamlink/internal/caps"
	"hamlink/internal/driver/dispatch"
	"hamlink/internal/model"
	"hamlink/internal/session"
	"hamlink/internal/utils"
	"hamlink/pkg/driver"
)

// Driver implements driver.RigDriver for newcat (FT-891 family) rigs
type Driver struct {
	sess         *session.Session
	desc         *caps.Descriptor
	rig          *caps.RigCaps
	logger       *utils.DeviceLogger
	eventHandler driver.EventHandler
	mutex        sync.RWMutex
	deviceInfo   *driver.DeviceInfo
}

// New wraps an open session in a newcat driver
func New(sess *session.Session) (*Driver, error) {
	desc := sess.Descriptor()
	if desc.Rig == nil {
		return nil, fmt.Errorf("yaesu: %s has no rig caps", desc.Model)
	}

	return &Driver{
		sess:   sess,
		desc:   desc,
		rig:    desc.Rig,
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
func (d *Driver) IsOpen() bool { return d.sess.Transport().IsOpen() }

// GetDeviceInfo returns device information
func (d *Driver) GetDeviceInfo() *driver.DeviceInfo { return d.deviceInfo }

// GetCapabilities returns the descriptor's capabilities
func (d *Driver) GetCapabilities() []model.Capability { return d.desc.Capabilities }

// GetHealthMetrics returns transaction statistics of the session
func (d *Driver) GetHealthMetrics() *driver.HealthMetrics { return d.sess.HealthMetrics() }

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

// SetFrequency tunes VFO A
func (d *Driver) SetFrequency(ctx context.Context, hz float64) error {
	if math.IsNaN(hz) || hz < d.rig.MinFreq || hz > d.rig.MaxFreq {
		return fmt.Errorf("frequency %v Hz outside [%.0f, %.0f]: %w", hz, d.rig.MinFreq, d.rig.MaxFreq, driver.ErrInvalidArgument)
	}
	rounded := decimal.NewFromFloat(hz).Round(0).IntPart()
	return d.set(ctx, fmt.Sprintf("FA%09d;", rounded))
}

// GetFrequency reads VFO A in Hz
func (d *Driver) GetFrequency(ctx context.Context) (float64, error) {
	payload, err := d.query(ctx, "FA")
	if err != nil {
		return 0, err
	}
	hz, err := decimal.NewFromString(payload)
	if err != nil {
		return 0, fmt.Errorf("frequency %q: %w", payload, driver.ErrProtocol)
	}
	return hz.InexactFloat64(), nil
}

// SetMode sets the main receiver mode
func (d *Driver) SetMode(ctx context.Context, mode driver.Mode) error {
	code, ok := modeCodes[driver.Mode(strings.ToUpper(string(mode)))]
	if !ok {
		return fmt.Errorf("mode %q: %w", mode, driver.ErrInvalidArgument)
	}
	return d.set(ctx, fmt.Sprintf("MD0%c;", code))
}

// GetMode reads the main receiver mode
func (d *Driver) GetMode(ctx context.Context) (driver.Mode, error) {
	payload, err := d.query(ctx, "MD0")
	if err != nil {
		return "", err
	}
	if len(payload) == 1 {
		for mode, code := range modeCodes {
			if code == payload[0] {
				return mode, nil
			}
		}
	}
	return "", fmt.Errorf("mode code %q: %w", payload, driver.ErrProtocol)
}

// SetLevel sets a level given as a fraction in [0, 1]
func (d *Driver) SetLevel(ctx context.Context, level driver.Level, value float64) error {
	if !contains(d.rig.SetLevels, string(level)) {
		return fmt.Errorf("set level %s: %w", level, driver.ErrNotSupported)
	}
	if math.IsNaN(value) || value < 0 || value > 1 {
		return fmt.Errorf("level %s value %v outside [0, 1]: %w", level, value, driver.ErrInvalidArgument)
	}

	var cmd string
	switch level {
	case driver.LevelRFPower:
		cmd = fmt.Sprintf("PC%03d;", 5+int(math.Round(value*95)))
	case driver.LevelAF:
		cmd = fmt.Sprintf("AG0%03d;", int(math.Round(value*255)))
	case driver.LevelSquelch:
		cmd = fmt.Sprintf("SQ0%03d;", int(math.Round(value*100)))
	}
	return d.set(ctx, cmd)
}

// GetLevel reads a level. STRENGTH is in dB relative to S9, RAWSTR is the
// raw meter value and the rest are fractions in [0, 1].
func (d *Driver) GetLevel(ctx context.Context, level driver.Level) (float64, error) {
	if !contains(d.rig.GetLevels, string(level)) {
		return 0, fmt.Errorf("get level %s: %w", level, driver.ErrNotSupported)
	}

	switch level {
	case driver.LevelStrength:
		raw, err := d.queryInt(ctx, "SM0", 3)
		if err != nil {
			return 0, err
		}
		return d.rig.StrengthCal.Interpolate(raw), nil
	case driver.LevelRawStrength:
		raw, err := d.queryInt(ctx, "SM0", 3)
		return float64(raw), err
	case driver.LevelRFPower:
		raw, err := d.queryInt(ctx, "PC", 3)
		if err != nil {
			return 0, err
		}
		return clamp01(float64(raw-5) / 95), nil
	case driver.LevelAF:
		raw, err := d.queryInt(ctx, "AG0", 3)
		return float64(raw) / 255, err
	case driver.LevelSquelch:
		raw, err := d.queryInt(ctx, "SQ0", 3)
		return float64(raw) / 100, err
	case driver.LevelRFPowerMeter:
		raw, err := d.queryInt(ctx, "RM5", 3)
		if err != nil {
			return 0, err
		}
		return clamp01(d.rig.RFPowerMeterCal.Interpolate(raw) / 100), nil
	}
	return 0, fmt.Errorf("get level %s: %w", level, driver.ErrNotSupported)
}

// SetPTT keys or unkeys the transmitter
func (d *Driver) SetPTT(ctx context.Context, on bool) error {
	if on {
		return d.set(ctx, "TX1;")
	}
	return d.set(ctx, "TX0;")
}

// GetPTT reports whether the rig is transmitting
func (d *Driver) GetPTT(ctx context.Context) (bool, error) {
	payload, err := d.query(ctx, "TX")
	if err != nil {
		return false, err
	}
	switch payload {
	case "0":
		return false, nil
	case "1", "2":
		return true, nil
	}
	return false, fmt.Errorf("ptt state %q: %w", payload, driver.ErrProtocol)
}

func (d *Driver) set(ctx context.Context, cmd string) error {
	d.logger.Debug("CAT set", zap.String("command", cmd))
	if _, err := d.sess.TransactText(ctx, cmd, false); err != nil {
		return fmt.Errorf("%s: %w", strings.TrimSuffix(cmd, ";"), err)
	}
	return nil
}

// query sends "<prefix>;" and returns the reply between prefix and the
// terminator.
func (d *Driver) query(ctx context.Context, prefix string) (string, error) {
	reply, err := d.sess.TransactText(ctx, prefix+";", true)
	if err != nil {
		return "", fmt.Errorf("%s: %w", prefix, err)
	}
	if reply == "?;" {
		return "", fmt.Errorf("%s: rig rejected command: %w", prefix, driver.ErrProtocol)
	}
	if !strings.HasPrefix(reply, prefix) || !strings.HasSuffix(reply, ";") {
		return "", fmt.Errorf("%s: unexpected reply %q: %w", prefix, reply, driver.ErrProtocol)
	}
	return reply[len(prefix) : len(reply)-1], nil
}

// queryInt parses the first digits of a numeric reply
func (d *Driver) queryInt(ctx context.Context, prefix string, digits int) (int, error) {
	payload, err := d.query(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(payload) < digits {
		return 0, fmt.Errorf("%s: short value %q: %w", prefix, payload, driver.ErrProtocol)
	}
	n, err := strconv.Atoi(payload[:digits])
	if err != nil {
		return 0, fmt.Errorf("%s: value %q: %w", prefix, payload, driver.ErrProtocol)
	}
	return n, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
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

var _ driver.RigDriver = (*Driver)(nil)
