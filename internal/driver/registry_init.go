// internal/driver/registry_init.go
package driver

import (
	"go.uber.org/zap"

	"hamlink/internal/driver/pelco"
	"hamlink/internal/driver/yaesu"
	"hamlink/internal/session"
	"hamlink/pkg/driver"
)

// RegisterDefaultDrivers registers all built-in models
func RegisterDefaultDrivers(registry *Registry, logger *zap.Logger) error {
	if err := registerRotators(registry, logger); err != nil {
		return err
	}
	return registerRigs(registry, logger)
}

func newPelco(sess *session.Session) (driver.DeviceDriver, error) {
	d, err := pelco.New(sess)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func newYaesu(sess *session.Session) (driver.DeviceDriver, error) {
	d, err := yaesu.New(sess)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// registerRotators registers Pelco-D positioners
func registerRotators(registry *Registry, logger *zap.Logger) error {
	// YAAN YL3040 pan/tilt
	if err := registry.Register("YL3040", pelco.YL3040(), newPelco); err != nil {
		return err
	}

	// Any other Pelco-D head
	if err := registry.Register(Wildcard, pelco.Generic(), newPelco); err != nil {
		return err
	}

	logger.Info("Rotator drivers registered", zap.Int("models", 2))
	return nil
}

// registerRigs registers newcat transceivers
func registerRigs(registry *Registry, logger *zap.Logger) error {
	// Yaesu FT-891
	if err := registry.Register("FT-891", yaesu.FT891(), newYaesu); err != nil {
		return err
	}

	logger.Info("Rig drivers registered", zap.Int("models", 1))
	return nil
}
