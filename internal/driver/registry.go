// internal/driver/registry.go
package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"hamlink/internal/caps"
	"hamlink/internal/model"
	"hamlink/internal/protocol"
	"hamlink/internal/session"
	"hamlink/pkg/driver"
)

// Wildcard matches any model of a brand
const Wildcard = "*"

// Factory builds a family driver over an already constructed session
type Factory func(sess *session.Session) (driver.DeviceDriver, error)

// DriverKey uniquely identifies a driver
type DriverKey struct {
	Brand      model.DeviceBrand
	DeviceType model.DeviceType
	Model      string
}

// Entry is a registered model: its descriptor and driver factory
type Entry struct {
	Key        DriverKey
	Descriptor *caps.Descriptor
	Factory    Factory
}

// Registry manages model registration and driver creation
type Registry struct {
	drivers map[DriverKey]*Entry
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRegistry creates a new driver registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		drivers: make(map[DriverKey]*Entry),
		logger:  logger,
	}
}

// Register registers a descriptor under modelName, which may be Wildcard.
// Brand and device type come from the descriptor.
func (r *Registry) Register(modelName string, desc *caps.Descriptor, factory Factory) error {
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("register %s: %w", modelName, err)
	}
	if factory == nil {
		return fmt.Errorf("register %s: nil factory", modelName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := DriverKey{
		Brand:      desc.Brand,
		DeviceType: desc.DeviceType,
		Model:      strings.ToUpper(modelName),
	}

	r.drivers[key] = &Entry{Key: key, Descriptor: desc, Factory: factory}
	r.logger.Info("Driver registered",
		zap.String("brand", string(desc.Brand)),
		zap.String("device_type", string(desc.DeviceType)),
		zap.String("model", modelName),
		zap.String("status", string(desc.Status)),
	)
	return nil
}

// Lookup resolves brand and model to a registered entry. An exact model
// match wins over the brand wildcard.
func (r *Registry) Lookup(brand model.DeviceBrand, deviceModel string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	brand = model.DeviceBrand(strings.ToUpper(string(brand)))
	deviceModel = strings.ToUpper(deviceModel)

	if e := r.find(brand, deviceModel); e != nil {
		return e, nil
	}
	if e := r.find(brand, Wildcard); e != nil {
		return e, nil
	}

	return nil, fmt.Errorf("no driver found for brand=%s, model=%s: %w", brand, deviceModel, driver.ErrNotSupported)
}

func (r *Registry) find(brand model.DeviceBrand, deviceModel string) *Entry {
	for key, e := range r.drivers {
		if key.Brand == brand && key.Model == deviceModel {
			return e
		}
	}
	return nil
}

// CreateDriver builds a session for the entry over t and hands it to the
// entry's factory
func (r *Registry) CreateDriver(e *Entry, t protocol.Transport, opts session.Options) (driver.DeviceDriver, *session.Session, error) {
	sess, err := session.New(e.Descriptor, t, opts, r.logger)
	if err != nil {
		return nil, nil, err
	}
	drv, err := e.Factory(sess)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s driver: %w", e.Descriptor.Model, err)
	}
	return drv, sess, nil
}

// ListDrivers returns all registered entries ordered by brand and model
func (r *Registry) ListDrivers() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*Entry, 0, len(r.drivers))
	for _, e := range r.drivers {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Key.Brand != entries[j].Key.Brand {
			return entries[i].Key.Brand < entries[j].Key.Brand
		}
		return entries[i].Key.Model < entries[j].Key.Model
	})
	return entries
}

// IsSupported checks if a device is supported
func (r *Registry) IsSupported(brand model.DeviceBrand, deviceModel string) bool {
	_, err := r.Lookup(brand, deviceModel)
	return err == nil
}

// GetSupportedBrands returns all supported brands for a device type
func (r *Registry) GetSupportedBrands(deviceType model.DeviceType) []model.DeviceBrand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	brandSet := make(map[model.DeviceBrand]bool)
	for key := range r.drivers {
		if key.DeviceType == deviceType {
			brandSet[key.Brand] = true
		}
	}

	brands := make([]model.DeviceBrand, 0, len(brandSet))
	for brand := range brandSet {
		brands = append(brands, brand)
	}
	sort.Slice(brands, func(i, j int) bool { return brands[i] < brands[j] })
	return brands
}
