// internal/transaction/engine.go
package transaction

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hamlink/internal/caps"
	"hamlink/internal/frame"
	"hamlink/internal/protocol"
	"hamlink/pkg/driver"
)

// Error codes carried by *Error
const (
	CodeNotOpen    = "NOT_OPEN"
	CodeTimeout    = "TIMEOUT"
	CodeShortWrite = "SHORT_WRITE"
	CodeIO         = "IO"
	CodeOverflow   = "OVERFLOW"
)

// Error describes a failed transport step of a transaction
type Error struct {
	Op   string // flush, write, read
	Code string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Engine runs single request/response exchanges over a transport. It does
// not lock and does not retry.
type Engine struct {
	transport protocol.Transport
	timing    caps.Timing
	logger    *zap.Logger
	sleep     func(time.Duration)
}

// NewEngine binds a transport to a descriptor's timing
func NewEngine(t protocol.Transport, timing caps.Timing, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		transport: t,
		timing:    timing,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// Execute flushes stale input, writes cmd and, when replyLen > 0, reads
// exactly replyLen bytes.
func (e *Engine) Execute(cmd []byte, replyLen int) ([]byte, error) {
	if err := e.send(cmd); err != nil {
		return nil, err
	}
	if replyLen == 0 {
		return nil, nil
	}

	reply, err := e.transport.ReadExact(replyLen, e.timing.Timeout)
	if err != nil {
		e.logger.Debug("rx failed", zap.String("partial", frame.Hex(reply)), zap.Error(err))
		return nil, readError(err)
	}
	e.logger.Debug("rx", zap.String("frame", frame.Hex(reply)))
	return reply, nil
}

// ExecuteTerminated is Execute for text dialects: the reply is read until
// terminator, up to maxLen bytes. maxLen == 0 means no reply is expected.
func (e *Engine) ExecuteTerminated(cmd []byte, terminator byte, maxLen int) ([]byte, error) {
	if err := e.send(cmd); err != nil {
		return nil, err
	}
	if maxLen == 0 {
		return nil, nil
	}

	reply := make([]byte, 0, maxLen)
	for {
		b, err := e.transport.ReadExact(1, e.timing.Timeout)
		if err != nil {
			e.logger.Debug("rx failed", zap.ByteString("partial", reply), zap.Error(err))
			return nil, readError(err)
		}
		reply = append(reply, b[0])
		if b[0] == terminator {
			break
		}
		if len(reply) >= maxLen {
			return nil, &Error{
				Op:   "read",
				Code: CodeOverflow,
				Err:  fmt.Errorf("%w: reply exceeds %d bytes", driver.ErrProtocol, maxLen),
			}
		}
	}
	e.logger.Debug("rx", zap.ByteString("reply", reply))
	return reply, nil
}

func (e *Engine) send(cmd []byte) error {
	if err := e.transport.Flush(); err != nil {
		return &Error{Op: "flush", Code: transportCode(err), Err: fmt.Errorf("%w: %w", driver.ErrTransportWrite, err)}
	}

	e.logger.Debug("tx", zap.String("frame", frame.Hex(cmd)))

	var err error
	if e.timing.WriteDelay > 0 {
		for i := range cmd {
			if err = e.transport.Write(cmd[i : i+1]); err != nil {
				break
			}
			e.sleep(e.timing.WriteDelay)
		}
	} else {
		err = e.transport.Write(cmd)
	}
	if err != nil {
		return &Error{Op: "write", Code: transportCode(err), Err: fmt.Errorf("%w: %w", driver.ErrTransportWrite, err)}
	}

	if e.timing.PostWriteDelay > 0 {
		e.sleep(e.timing.PostWriteDelay)
	}
	return nil
}

func readError(err error) error {
	return &Error{Op: "read", Code: transportCode(err), Err: fmt.Errorf("%w: %w", driver.ErrTransportRead, err)}
}

func transportCode(err error) string {
	switch {
	case errors.Is(err, protocol.ErrTimeout):
		return CodeTimeout
	case errors.Is(err, protocol.ErrShortWrite):
		return CodeShortWrite
	case errors.Is(err, protocol.ErrNotOpen):
		return CodeNotOpen
	default:
		return CodeIO
	}
}
