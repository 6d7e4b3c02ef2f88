// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"hamlink/internal/discovery"
	"hamlink/internal/model"
)

// Scanner enumerates the serial ports of the host
type Scanner struct {
	logger    *zap.Logger
	config    *Config
	listPorts func() ([]*enumerator.PortDetails, error)
}

// Config for serial scanner
type Config struct {
	// PortPatterns are filepath.Match patterns; empty accepts every port.
	PortPatterns []string `json:"port_patterns"`
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{PortPatterns: getDefaultPortPatterns()}
	}

	return &Scanner{
		logger:    logger.With(zap.String("scanner", "serial")),
		config:    config,
		listPorts: enumerator.GetDetailedPortsList,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable checks if serial scanning is available
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists serial ports and identifies known USB bridges. Ports are not
// opened.
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	ports, err := s.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	var discovered []*discovery.DiscoveredDevice
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return discovered, err
		}
		if !s.matches(port.Name) {
			continue
		}
		discovered = append(discovered, describePort(port))
	}

	s.logger.Info("Serial scan completed",
		zap.Int("ports_found", len(ports)),
		zap.Int("devices_found", len(discovered)),
	)
	return discovered, nil
}

func (s *Scanner) matches(name string) bool {
	if len(s.config.PortPatterns) == 0 {
		return true
	}
	for _, pattern := range s.config.PortPatterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func describePort(port *enumerator.PortDetails) *discovery.DiscoveredDevice {
	device := &discovery.DiscoveredDevice{
		ConnectionType: model.ConnectionTypeSerial,
		ConnectionInfo: map[string]interface{}{
			"port":   port.Name,
			"is_usb": port.IsUSB,
		},
		Confidence: 0.1,
	}
	if !port.IsUSB {
		return device
	}

	device.ConnectionInfo["vid"] = port.VID
	device.ConnectionInfo["pid"] = port.PID
	device.SerialNumber = port.SerialNumber
	device.Description = port.Product

	if info, ok := LookupBridge(port.VID, port.PID); ok {
		device.Brand = info.Brand
		device.Model = info.Model
		device.DeviceType = info.DeviceType
		device.Confidence = info.Confidence
		if device.Description == "" {
			device.Description = info.Name
		}
	}
	return device
}

func getDefaultPortPatterns() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"COM*"}
	case "darwin":
		return []string{"/dev/cu.*", "/dev/tty.*"}
	default:
		return []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*", "/dev/serial/by-id/*"}
	}
}
