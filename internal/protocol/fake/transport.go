// Package fake provides in-memory transports and device stubs for tests
// and for the hamctl dry-run mode.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hamlink/internal/model"
	"hamlink/internal/protocol"
)

// Responder answers one written command. The returned bytes are queued as
// pending input.
type Responder func(cmd []byte) []byte

// Transport is a scripted protocol.Transport
type Transport struct {
	mu sync.Mutex

	Responder Responder

	// WriteErrs and ReadErrs are consumed one per call; a nil entry lets
	// that call through.
	WriteErrs []error
	ReadErrs  []error

	writes  [][]byte
	pending []byte
	flushes int
	reads   int
	open    bool
	stats   protocol.ProtocolStats
}

// NewTransport returns an open transport driven by r
func NewTransport(r Responder) *Transport {
	return &Transport{Responder: r, open: true}
}

func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = true
	t.stats.IsConnected = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = false
	t.stats.IsConnected = false
	return nil
}

func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *Transport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return protocol.ErrNotOpen
	}
	t.flushes++
	t.pending = nil
	return nil
}

func (t *Transport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return protocol.ErrNotOpen
	}

	cmd := append([]byte(nil), data...)
	t.writes = append(t.writes, cmd)

	if len(t.WriteErrs) > 0 {
		err := t.WriteErrs[0]
		t.WriteErrs = t.WriteErrs[1:]
		if err != nil {
			t.stats.ErrorCount++
			return err
		}
	}

	t.stats.BytesWritten += int64(len(data))
	t.stats.OperationCount++
	if t.Responder != nil {
		t.pending = append(t.pending, t.Responder(cmd)...)
	}
	return nil
}

func (t *Transport) ReadExact(n int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil, protocol.ErrNotOpen
	}
	t.reads++

	if len(t.ReadErrs) > 0 {
		err := t.ReadErrs[0]
		t.ReadErrs = t.ReadErrs[1:]
		if err != nil {
			t.stats.ErrorCount++
			t.pending = nil
			return nil, err
		}
	}

	if len(t.pending) < n {
		got := t.pending
		t.pending = nil
		t.stats.ErrorCount++
		return got, fmt.Errorf("got %d of %d bytes after %v: %w", len(got), n, timeout, protocol.ErrTimeout)
	}
	out := append([]byte(nil), t.pending[:n]...)
	t.pending = t.pending[n:]
	t.stats.BytesRead += int64(n)
	return out, nil
}

func (t *Transport) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeSerial
}

func (t *Transport) Stats() protocol.ProtocolStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Writes returns every frame written so far
func (t *Transport) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	copy(out, t.writes)
	return out
}

// Flushes returns how many times input was flushed
func (t *Transport) Flushes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushes
}

// Reads returns how many reads were attempted
func (t *Transport) Reads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reads
}

// IOCount is the number of writes plus reads
func (t *Transport) IOCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes) + t.reads
}
