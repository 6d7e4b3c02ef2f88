// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// OperationType represents a logical client operation
type OperationType string

const (
	OperationTypeSetPosition OperationType = "SET_POSITION"
	OperationTypeGetPosition OperationType = "GET_POSITION"
	OperationTypeStop        OperationType = "STOP"
	OperationTypePark        OperationType = "PARK"
	OperationTypeMove        OperationType = "MOVE"
	OperationTypeReset       OperationType = "RESET"

	OperationTypeSetFrequency OperationType = "SET_FREQUENCY"
	OperationTypeGetFrequency OperationType = "GET_FREQUENCY"
	OperationTypeSetMode      OperationType = "SET_MODE"
	OperationTypeGetMode      OperationType = "GET_MODE"
	OperationTypeSetLevel     OperationType = "SET_LEVEL"
	OperationTypeGetLevel     OperationType = "GET_LEVEL"
	OperationTypeSetPTT       OperationType = "SET_PTT"
	OperationTypeGetPTT       OperationType = "GET_PTT"
)

// OperationStatus represents the status of an operation
type OperationStatus string

const (
	OperationStatusPending OperationStatus = "PENDING"
	OperationStatusSuccess OperationStatus = "SUCCESS"
	OperationStatusFailed  OperationStatus = "FAILED"
)

// DeviceOperation represents an operation performed on a device
type DeviceOperation struct {
	ID            uuid.UUID       `json:"id"`
	SessionID     uuid.UUID       `json:"session_id"`
	OperationType OperationType   `json:"operation_type"`
	OperationData JSONObject      `json:"operation_data"`
	Status        OperationStatus `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
}

// NewOperation creates a pending operation with a fresh id
func NewOperation(sessionID uuid.UUID, opType OperationType, data JSONObject) *DeviceOperation {
	if data == nil {
		data = JSONObject{}
	}
	return &DeviceOperation{
		ID:            uuid.New(),
		SessionID:     sessionID,
		OperationType: opType,
		OperationData: data,
		Status:        OperationStatusPending,
		StartedAt:     time.Now(),
	}
}

// Complete marks the operation finished with the given error
func (op *DeviceOperation) Complete(err error) {
	now := time.Now()
	op.CompletedAt = &now
	if err != nil {
		msg := err.Error()
		op.ErrorMessage = &msg
		op.Status = OperationStatusFailed
		return
	}
	op.Status = OperationStatusSuccess
}
