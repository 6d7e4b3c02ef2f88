// pkg/driver/errors.go
package driver

import "errors"

// Normalized driver errors. Callers match them with errors.Is; the
// concrete error usually wraps one of these with device context.
var (
	// ErrInvalidArgument is returned before any I/O when a caller supplied
	// value or enum is outside the descriptor-defined range.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrShortReply means the device answered with fewer bytes than the
	// dialect's fixed reply length.
	ErrShortReply = errors.New("short reply")

	// ErrChecksum is only produced by dialects that validate reply checksums.
	ErrChecksum = errors.New("reply checksum mismatch")

	ErrTransportWrite = errors.New("transport write failed")
	ErrTransportRead  = errors.New("transport read failed")

	// ErrRetriesExhausted wraps the last failure after every configured
	// attempt of a transaction failed.
	ErrRetriesExhausted = errors.New("retries exhausted")

	ErrNotSupported = errors.New("operation not supported")

	// ErrProtocol is returned when the device answers but rejects the
	// command or the answer cannot be parsed.
	ErrProtocol = errors.New("protocol error")

	ErrSessionNotFound = errors.New("session not found")
)
