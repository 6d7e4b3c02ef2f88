// internal/session/session.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hamlink/internal/caps"
	"hamlink/internal/frame"
	"hamlink/internal/protocol"
	"hamlink/internal/transaction"
	"hamlink/internal/utils"
	"hamlink/pkg/driver"
)

// Options are per-session overrides of descriptor defaults
type Options struct {
	// Address overrides the descriptor's default bus address when non-zero.
	Address byte
	Port    string
}

// Session is bound to one open device. It is not safe for concurrent use;
// callers serialize access.
type Session struct {
	ID uuid.UUID

	desc      *caps.Descriptor
	transport protocol.Transport
	engine    *transaction.Engine
	codec     *frame.Codec
	poller    PositionPoller
	opts      Options
	logger    *utils.DeviceLogger
	openedAt  time.Time

	// metrics is read from other goroutines by the health endpoints.
	metricsMu sync.Mutex
	metrics   driver.HealthMetrics
}

// New builds a session for desc over t. A nil descriptor or transport is a
// programming error.
func New(desc *caps.Descriptor, t protocol.Transport, opts Options, logger *zap.Logger) (*Session, error) {
	if desc == nil || t == nil {
		panic("session: nil descriptor or transport")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	id := uuid.New()
	s := &Session{
		ID:        id,
		desc:      desc,
		transport: t,
		opts:      opts,
		openedAt:  time.Now(),
		logger: utils.NewDeviceLogger(
			logger.With(zap.String("session_id", id.String()), zap.String("model", desc.Model)),
			opts.Port, string(desc.DeviceType), string(desc.Brand),
		),
	}
	s.engine = transaction.NewEngine(t, desc.Timing, s.logger.Logger)

	if desc.Frame != nil {
		address := desc.DefaultAddress
		if opts.Address != 0 {
			address = opts.Address
		}
		codec, err := frame.NewCodec(*desc.Frame, address)
		if err != nil {
			return nil, fmt.Errorf("session for %s: %w", desc.Model, err)
		}
		s.codec = codec
	}

	return s, nil
}

// Descriptor returns the capability descriptor the session was opened with
func (s *Session) Descriptor() *caps.Descriptor { return s.desc }

// Codec returns the frame codec, nil for text dialects
func (s *Session) Codec() *frame.Codec { return s.codec }

// Poller returns the session's position polling cursor
func (s *Session) Poller() *PositionPoller { return &s.poller }

// Transport returns the borrowed transport
func (s *Session) Transport() protocol.Transport { return s.transport }

// Options returns the overrides the session was opened with
func (s *Session) Options() Options { return s.opts }

// OpenedAt is the session creation time
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// Logger returns the session's device logger
func (s *Session) Logger() *utils.DeviceLogger { return s.logger }

// Open opens the underlying transport
func (s *Session) Open(ctx context.Context) error {
	err := s.transport.Open(ctx)
	s.logger.LogConnection("open", err == nil, err)
	return err
}

// Close closes the underlying transport and clears polling state
func (s *Session) Close() error {
	s.poller.Reset()
	err := s.transport.Close()
	s.logger.LogConnection("close", err == nil, err)
	return err
}

// Transact runs one frame exchange with the descriptor's retry policy.
// replyLen == 0 sends without reading.
func (s *Session) Transact(ctx context.Context, cmd frame.Frame, replyLen int) ([]byte, error) {
	var reply []byte
	err := s.retry(ctx, cmd.String(), func() (string, error) {
		r, err := s.engine.Execute(cmd.Bytes(), replyLen)
		if err != nil {
			return "", err
		}
		reply = r
		return frame.Hex(r), nil
	})
	return reply, err
}

// Query sends cmd and decodes the fixed-length reply. Short and corrupt
// replies are retried like transport failures.
func (s *Session) Query(ctx context.Context, cmd frame.Frame) (frame.Reply, error) {
	if s.codec == nil {
		return frame.Reply{}, fmt.Errorf("%s has no binary frame layout: %w", s.desc.Model, driver.ErrNotSupported)
	}

	var reply frame.Reply
	err := s.retry(ctx, cmd.String(), func() (string, error) {
		raw, err := s.engine.Execute(cmd.Bytes(), s.codec.ReplyLength())
		if err != nil {
			return "", err
		}
		r, err := s.codec.Decode(raw)
		if err != nil {
			return frame.Hex(raw), err
		}
		reply = r
		return frame.Hex(raw), nil
	})
	return reply, err
}

// TransactText runs a terminator-delimited exchange. When expectReply is
// false the command is only written.
func (s *Session) TransactText(ctx context.Context, cmd string, expectReply bool) (string, error) {
	if s.desc.Rig == nil {
		return "", fmt.Errorf("%s has no text dialect: %w", s.desc.Model, driver.ErrNotSupported)
	}

	maxLen := 0
	if expectReply {
		maxLen = s.desc.Rig.MaxReply
	}

	var reply string
	err := s.retry(ctx, cmd, func() (string, error) {
		r, err := s.engine.ExecuteTerminated([]byte(cmd), s.desc.Rig.Terminator, maxLen)
		if err != nil {
			return "", err
		}
		reply = string(r)
		return reply, nil
	})
	return reply, err
}

// retry applies the descriptor's attempt count to exchange. Cancellation
// is only observed between attempts.
func (s *Session) retry(ctx context.Context, command string, exchange func() (string, error)) error {
	start := time.Now()
	err := transaction.Retry(s.desc.Attempts(), func(attempt int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 1 {
			s.countRetry()
		}

		began := time.Now()
		reply, err := exchange()
		s.logger.LogTransaction(attempt, command, reply, time.Since(began), err)
		return err
	})
	s.record(time.Since(start), err)
	return err
}

// HealthMetrics returns a snapshot of transaction statistics
func (s *Session) HealthMetrics() *driver.HealthMetrics {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	m := s.metrics
	return &m
}

func (s *Session) countRetry() {
	s.metricsMu.Lock()
	s.metrics.RetryCount++
	s.metricsMu.Unlock()
}

// record updates metrics the same way the driver health metrics are kept
func (s *Session) record(responseTime time.Duration, err error) {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()

	m := &s.metrics
	m.TotalOperations++
	m.ResponseTime = responseTime
	now := time.Now()
	if err == nil {
		m.LastSuccessTime = &now
	} else {
		m.ErrorCount++
		m.LastErrorTime = &now
	}
	m.SuccessRate = float64(m.TotalOperations-m.ErrorCount) / float64(m.TotalOperations)

	m.HealthScore = int(m.SuccessRate * 100)
	if responseTime > s.desc.Timing.Timeout*time.Duration(s.desc.Attempts()) {
		m.HealthScore -= 10
	}
	if m.HealthScore < 0 {
		m.HealthScore = 0
	}
}
