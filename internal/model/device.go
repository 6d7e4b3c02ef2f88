// internal/model/device.go
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeviceType represents the family of device
type DeviceType string

const (
	DeviceTypeRotator DeviceType = "ROTATOR"
	DeviceTypeRig     DeviceType = "RIG"
)

// DeviceStatus represents the current status of a device
type DeviceStatus string

const (
	DeviceStatusOnline     DeviceStatus = "ONLINE"
	DeviceStatusOffline    DeviceStatus = "OFFLINE"
	DeviceStatusError      DeviceStatus = "ERROR"
	DeviceStatusConnecting DeviceStatus = "CONNECTING"
)

// ConnectionType represents how the device is connected
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
)

// DeviceBrand represents supported device manufacturers
type DeviceBrand string

const (
	BrandYaan  DeviceBrand = "YAAN"
	BrandPelco DeviceBrand = "PELCO"
	BrandYaesu DeviceBrand = "YAESU"
)

// Capability represents what a device can do
type Capability string

const (
	CapabilitySetPosition Capability = "SET_POSITION"
	CapabilityGetPosition Capability = "GET_POSITION"
	CapabilityStop        Capability = "STOP"
	CapabilityPark        Capability = "PARK"
	CapabilityMove        Capability = "MOVE"
	CapabilityReset       Capability = "RESET"

	CapabilitySetFrequency Capability = "SET_FREQUENCY"
	CapabilityGetFrequency Capability = "GET_FREQUENCY"
	CapabilitySetMode      Capability = "SET_MODE"
	CapabilityGetMode      Capability = "GET_MODE"
	CapabilitySetLevel     Capability = "SET_LEVEL"
	CapabilityGetLevel     Capability = "GET_LEVEL"
	CapabilityPTT          Capability = "PTT"
)

// JSONObject is a loosely typed JSON object used for connection settings
// and operation arguments.
type JSONObject map[string]interface{}

// Clone returns a shallow copy of the object.
func (j JSONObject) Clone() JSONObject {
	if j == nil {
		return nil
	}
	out := make(JSONObject, len(j))
	for k, v := range j {
		out[k] = v
	}
	return out
}

// String renders the object as compact JSON for logs.
func (j JSONObject) String() string {
	b, err := json.Marshal(j)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Device represents an opened physical device
type Device struct {
	ID               uuid.UUID      `json:"id"`
	DeviceID         string         `json:"device_id"`
	DeviceType       DeviceType     `json:"device_type"`
	Brand            DeviceBrand    `json:"brand"`
	Model            string         `json:"model"`
	ConnectionType   ConnectionType `json:"connection_type"`
	ConnectionConfig JSONObject     `json:"connection_config"`
	Capabilities     []Capability   `json:"capabilities"`
	Status           DeviceStatus   `json:"status"`
	LastActivity     *time.Time     `json:"last_activity,omitempty"`
	OpenedAt         time.Time      `json:"opened_at"`
}

// HasCapability checks if device has a specific capability
func (d *Device) HasCapability(capability Capability) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
