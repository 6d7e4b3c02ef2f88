// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"hamlink/internal/model"
)

// SerialConnection implements Transport on top of go.bug.st/serial
type SerialConnection struct {
	config *SerialConfig
	port   serial.Port
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	stats  ProtocolStats
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", config.Port),
		),
	}
}

// Mode converts the config into a go.bug.st/serial mode
func (c *SerialConfig) Mode() *serial.Mode {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: serial.OneStopBit,
	}
	if c.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch c.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode
}

// Open opens the serial connection
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sc.logger.Info("Opening serial port",
		zap.Int("baud_rate", sc.config.BaudRate),
		zap.Int("data_bits", sc.config.DataBits),
		zap.Int("stop_bits", sc.config.StopBits),
		zap.String("parity", sc.config.Parity),
	)

	port, err := serial.Open(sc.config.Port, sc.config.Mode())
	if err != nil {
		sc.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port %s: %w", sc.config.Port, err)
	}

	if err := port.SetReadTimeout(sc.config.Timeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	sc.port = port
	sc.isOpen = true
	sc.stats.IsConnected = true
	sc.stats.LastActivity = time.Now()

	sc.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial connection
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil
	}

	if err := sc.port.Close(); err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.port = nil
	sc.isOpen = false
	sc.stats.IsConnected = false

	sc.logger.Info("Serial port closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.isOpen && sc.port != nil
}

// Flush drops unread input
func (sc *SerialConnection) Flush() error {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return ErrNotOpen
	}
	if err := sc.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to flush serial input: %w", err)
	}
	return nil
}

// Write writes data to the serial port
func (sc *SerialConnection) Write(data []byte) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return ErrNotOpen
	}

	startTime := time.Now()
	n, err := sc.port.Write(data)
	if err != nil {
		sc.stats.ErrorCount++
		sc.logger.Error("Serial write failed", zap.Error(err))
		return fmt.Errorf("failed to write to serial port: %w", err)
	}

	if n != len(data) {
		sc.stats.ErrorCount++
		return fmt.Errorf("wrote %d of %d bytes: %w", n, len(data), ErrShortWrite)
	}

	sc.stats.BytesWritten += int64(len(data))
	sc.stats.OperationCount++
	sc.stats.LastActivity = time.Now()
	sc.updateAverageLatency(time.Since(startTime))

	sc.logger.Debug("Serial write completed", zap.Int("bytes", len(data)))
	return nil
}

// ReadExact reads exactly n bytes. go.bug.st/serial returns (0, nil) when
// the read timeout expires, so the loop tracks its own deadline.
func (sc *SerialConnection) ReadExact(n int, timeout time.Duration) ([]byte, error) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil, ErrNotOpen
	}

	startTime := time.Now()
	deadline := startTime.Add(timeout)
	buf := make([]byte, n)
	got := 0

	for got < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := sc.port.SetReadTimeout(remaining); err != nil {
			sc.stats.ErrorCount++
			return buf[:got], fmt.Errorf("failed to set read timeout: %w", err)
		}
		k, err := sc.port.Read(buf[got:])
		if err != nil {
			sc.stats.ErrorCount++
			return buf[:got], fmt.Errorf("failed to read from serial port: %w", err)
		}
		if k == 0 {
			break
		}
		got += k
	}

	sc.stats.BytesRead += int64(got)
	sc.stats.LastActivity = time.Now()

	if got < n {
		sc.stats.ErrorCount++
		return buf[:got], fmt.Errorf("got %d of %d bytes after %v: %w", got, n, timeout, ErrTimeout)
	}

	sc.stats.OperationCount++
	sc.updateAverageLatency(time.Since(startTime))
	return buf, nil
}

// GetProtocolType returns the protocol type
func (sc *SerialConnection) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeSerial
}

// Stats returns a copy of the connection statistics
func (sc *SerialConnection) Stats() ProtocolStats {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.stats
}

// updateAverageLatency updates the running average latency
func (sc *SerialConnection) updateAverageLatency(newLatency time.Duration) {
	if sc.stats.AverageLatency == 0 {
		sc.stats.AverageLatency = newLatency
	} else {
		sc.stats.AverageLatency = (sc.stats.AverageLatency + newLatency) / 2
	}
}
