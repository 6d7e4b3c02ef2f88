// internal/protocol/protocol.go
package protocol

import (
	"context"
	"errors"
	"time"

	"hamlink/internal/model"
)

var (
	ErrNotOpen    = errors.New("port not open")
	ErrTimeout    = errors.New("read timeout")
	ErrShortWrite = errors.New("incomplete write")
)

// Transport is the byte pipe a device session talks through
type Transport interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Flush discards any input already buffered by the driver.
	Flush() error
	// Write sends the whole buffer or fails.
	Write(data []byte) error
	// ReadExact reads n bytes or fails with ErrTimeout once timeout
	// elapses. On timeout the bytes received so far are returned.
	ReadExact(n int, timeout time.Duration) ([]byte, error)

	GetProtocolType() model.ConnectionType
	Stats() ProtocolStats
}

// ProtocolStats provides protocol-level statistics
type ProtocolStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}
