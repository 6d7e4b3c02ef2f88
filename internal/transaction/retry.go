// internal/transaction/retry.go
package transaction

import (
	"errors"
	"fmt"

	"hamlink/pkg/driver"
)

// Retryable reports whether repeating the whole transaction may help
func Retryable(err error) bool {
	return errors.Is(err, driver.ErrTransportRead) ||
		errors.Is(err, driver.ErrTransportWrite) ||
		errors.Is(err, driver.ErrShortReply) ||
		errors.Is(err, driver.ErrChecksum)
}

// Retry calls fn until it succeeds, returns a non-retryable error, or
// attempts calls have failed. attempt is 1-based.
func Retry(attempts int, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", driver.ErrRetriesExhausted, attempts, err)
}
