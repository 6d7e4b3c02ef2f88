// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventDeviceConnected    EventType = "DEVICE_CONNECTED"
	EventDeviceDisconnected EventType = "DEVICE_DISCONNECTED"
	EventDeviceError        EventType = "DEVICE_ERROR"
	EventOperationCompleted EventType = "OPERATION_COMPLETED"
	EventOperationFailed    EventType = "OPERATION_FAILED"
	EventPositionUpdate     EventType = "POSITION_UPDATE"
)

// DeviceEvent represents an event in the system
type DeviceEvent struct {
	ID        uuid.UUID  `json:"id"`
	EventType EventType  `json:"event_type"`
	SessionID string     `json:"session_id"`
	Data      JSONObject `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
	Severity  string     `json:"severity"` // INFO, WARNING, ERROR
}

// NewDeviceEvent builds an event stamped with the current time
func NewDeviceEvent(eventType EventType, sessionID string, data JSONObject) DeviceEvent {
	severity := "INFO"
	switch eventType {
	case EventDeviceError, EventOperationFailed:
		severity = "ERROR"
	case EventDeviceDisconnected:
		severity = "WARNING"
	}
	return DeviceEvent{
		ID:        uuid.New(),
		EventType: eventType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now(),
		Severity:  severity,
	}
}
