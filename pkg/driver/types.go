// pkg/driver/types.go
package driver

import (
	"fmt"
	"strings"
	"time"

	"hamlink/internal/model"
)

// Core data structures

// DeviceInfo contains basic device information
type DeviceInfo struct {
	SessionID      string               `json:"session_id"`
	Brand          model.DeviceBrand    `json:"brand"`
	Model          string               `json:"model"`
	DeviceType     model.DeviceType     `json:"device_type"`
	Manufacturer   string               `json:"manufacturer"`
	Version        string               `json:"version"`
	Status         string               `json:"status"`
	Port           string               `json:"port"`
	Capabilities   []model.Capability   `json:"capabilities"`
	ConnectionType model.ConnectionType `json:"connection_type"`
}

// OperationResult represents the result of a device operation
type OperationResult struct {
	Success      bool                   `json:"success"`
	ErrorCode    string                 `json:"error_code,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Duration     string                 `json:"duration"`
	Timestamp    time.Time              `json:"timestamp"`
}

// HealthMetrics contains device health information
type HealthMetrics struct {
	HealthScore     int           `json:"health_score"` // 0-100
	ResponseTime    time.Duration `json:"response_time"`
	SuccessRate     float64       `json:"success_rate"` // 0.0-1.0
	ErrorCount      int64         `json:"error_count"`
	RetryCount      int64         `json:"retry_count"`
	TotalOperations int64         `json:"total_operations"`
	LastErrorTime   *time.Time    `json:"last_error_time,omitempty"`
	LastSuccessTime *time.Time    `json:"last_success_time,omitempty"`
}

// EventHandler handles device events
type EventHandler interface {
	OnDeviceConnected(sessionID string)
	OnDeviceDisconnected(sessionID string, reason string)
	OnDeviceError(sessionID string, err error)
	OnOperationCompleted(sessionID string, operationID string, result *OperationResult)
}

// Rotator types

// Position is an azimuth/elevation pair in degrees
type Position struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

// MoveDirection is the direction of a continuous move
type MoveDirection string

const (
	MoveUp    MoveDirection = "UP"
	MoveDown  MoveDirection = "DOWN"
	MoveLeft  MoveDirection = "LEFT"
	MoveRight MoveDirection = "RIGHT"
)

// ParseMoveDirection accepts the direction names case-insensitively.
func ParseMoveDirection(s string) (MoveDirection, error) {
	d := MoveDirection(strings.ToUpper(strings.TrimSpace(s)))
	switch d {
	case MoveUp, MoveDown, MoveLeft, MoveRight:
		return d, nil
	}
	return "", fmt.Errorf("unknown move direction %q: %w", s, ErrInvalidArgument)
}

// ResetType selects what a reset affects
type ResetType string

const (
	ResetAll ResetType = "ALL"
)

// ParseResetType accepts the reset mode names case-insensitively.
func ParseResetType(s string) (ResetType, error) {
	r := ResetType(strings.ToUpper(strings.TrimSpace(s)))
	if r == ResetAll {
		return r, nil
	}
	return "", fmt.Errorf("unknown reset mode %q: %w", s, ErrInvalidArgument)
}

// Rig types

// Mode is a transceiver operating mode
type Mode string

const (
	ModeLSB    Mode = "LSB"
	ModeUSB    Mode = "USB"
	ModeCW     Mode = "CW"
	ModeCWR    Mode = "CWR"
	ModeFM     Mode = "FM"
	ModeFMN    Mode = "FMN"
	ModeAM     Mode = "AM"
	ModeAMN    Mode = "AMN"
	ModeRTTY   Mode = "RTTY"
	ModeRTTYR  Mode = "RTTYR"
	ModePKTLSB Mode = "PKTLSB"
	ModePKTUSB Mode = "PKTUSB"
	ModePKTFM  Mode = "PKTFM"
)

// Level names a readable or settable rig level
type Level string

const (
	LevelStrength     Level = "STRENGTH"
	LevelRawStrength  Level = "RAWSTR"
	LevelRFPower      Level = "RFPOWER"
	LevelRFPowerMeter Level = "RFPOWER_METER"
	LevelAF           Level = "AF"
	LevelSquelch      Level = "SQL"
)
