// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"hamlink/internal/model"
)

// DeviceScanner finds candidate device connections
type DeviceScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredDevice, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredDevice is a connection that may host a supported device.
// Brand and Model are only set when the hardware identifies itself.
type DiscoveredDevice struct {
	ConnectionType model.ConnectionType   `json:"connection_type"`
	ConnectionInfo map[string]interface{} `json:"connection_info"`
	Brand          model.DeviceBrand      `json:"brand,omitempty"`
	Model          string                 `json:"model,omitempty"`
	DeviceType     model.DeviceType       `json:"device_type,omitempty"`
	Confidence     float64                `json:"confidence"` // 0.0-1.0
	SerialNumber   string                 `json:"serial_number,omitempty"`
	Description    string                 `json:"description,omitempty"`
}

// ScannerManager manages all device scanners
type ScannerManager struct {
	scanners map[string]DeviceScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]DeviceScanner),
		logger:   logger,
	}
}

// RegisterScanner registers a device scanner
func (sm *ScannerManager) RegisterScanner(scanner DeviceScanner) {
	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll scans all registered scanner types. A failing scanner is logged
// and skipped.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredDevice, error) {
	var allDevices []*DiscoveredDevice

	for _, scannerType := range sm.scannerTypes() {
		scanner := sm.scanners[scannerType]
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		devices, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		allDevices = append(allDevices, devices...)
		sm.logger.Info("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("devices_found", len(devices)),
		)
	}

	return allDevices, nil
}

// ScanByType scans specific scanner type
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredDevice, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}

	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	return scanner.Scan(ctx)
}

// GetAvailableScanners returns list of available scanner types
func (sm *ScannerManager) GetAvailableScanners() []string {
	var available []string
	for _, scannerType := range sm.scannerTypes() {
		if sm.scanners[scannerType].IsAvailable() {
			available = append(available, scannerType)
		}
	}
	return available
}

func (sm *ScannerManager) scannerTypes() []string {
	types := make([]string, 0, len(sm.scanners))
	for t := range sm.scanners {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
