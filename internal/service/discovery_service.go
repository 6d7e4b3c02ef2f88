// internal/service/discovery_service.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hamlink/internal/discovery"
	"hamlink/internal/discovery/serial"
	"hamlink/internal/driver"
	"hamlink/internal/model"
	"hamlink/internal/utils"
)

// DiscoveryService lists host ports and the models the registry supports
type DiscoveryService struct {
	driverRegistry *driver.Registry
	scannerManager *discovery.ScannerManager
	logger         *utils.ServiceLogger
}

// NewDiscoveryService creates a new discovery service
func NewDiscoveryService(driverRegistry *driver.Registry, logger *zap.Logger) *DiscoveryService {
	ds := &DiscoveryService{
		driverRegistry: driverRegistry,
		scannerManager: discovery.NewScannerManager(logger),
		logger:         utils.NewServiceLogger(logger, "discovery-service"),
	}

	ds.RegisterScanner(serial.NewScanner(logger, nil))
	return ds
}

// RegisterScanner adds a scanner
func (ds *DiscoveryService) RegisterScanner(scanner discovery.DeviceScanner) {
	if scanner.IsAvailable() {
		ds.scannerManager.RegisterScanner(scanner)
	}
}

// ScanDevices scans one scanner type, or all of them for "all"
func (ds *DiscoveryService) ScanDevices(ctx context.Context, scanType string) ([]*discovery.DiscoveredDevice, error) {
	ds.logger.Info("Starting device scan", zap.String("type", scanType))

	var devices []*discovery.DiscoveredDevice
	var err error

	switch scanType {
	case "", "all":
		devices, err = ds.scannerManager.ScanAll(ctx)
	default:
		devices, err = ds.scannerManager.ScanByType(ctx, scanType)
	}
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	for _, d := range devices {
		if d.Brand != "" && !ds.driverRegistry.IsSupported(d.Brand, d.Model) {
			d.Confidence /= 2
		}
	}

	ds.logger.Info("Device scan completed",
		zap.Int("devices_found", len(devices)),
		zap.String("scan_type", scanType),
	)
	return devices, nil
}

// GetSupportedDevices lists every registered model grouped by device type
func (ds *DiscoveryService) GetSupportedDevices() *SupportedDevicesResponse {
	resp := &SupportedDevicesResponse{
		Rotators: []SupportedModel{},
		Rigs:     []SupportedModel{},
	}

	for _, e := range ds.driverRegistry.ListDrivers() {
		m := SupportedModel{
			Brand:      e.Key.Brand,
			DeviceType: e.Key.DeviceType,
			Model:      e.Key.Model,
			Name:       e.Descriptor.Model,
			Status:     string(e.Descriptor.Status),
		}
		switch e.Key.DeviceType {
		case model.DeviceTypeRotator:
			resp.Rotators = append(resp.Rotators, m)
		case model.DeviceTypeRig:
			resp.Rigs = append(resp.Rigs, m)
		}
	}
	resp.Total = len(resp.Rotators) + len(resp.Rigs)
	return resp
}

// GetAvailableScanners returns the registered scanner types
func (ds *DiscoveryService) GetAvailableScanners() []string {
	return ds.scannerManager.GetAvailableScanners()
}

// SupportedModel is one registry entry
type SupportedModel struct {
	Brand      model.DeviceBrand `json:"brand"`
	DeviceType model.DeviceType  `json:"device_type"`
	Model      string            `json:"model"`
	Name       string            `json:"name"`
	Status     string            `json:"status"`
}

// SupportedDevicesResponse groups supported models by family
type SupportedDevicesResponse struct {
	Rotators []SupportedModel `json:"rotators"`
	Rigs     []SupportedModel `json:"rigs"`
	Total    int              `json:"total"`
}
