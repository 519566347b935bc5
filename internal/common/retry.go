package common

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultBackoff is the delay sequence used between retry attempts.
// One attempt is made per delay, plus the initial attempt.
var DefaultBackoff = []time.Duration{1 * time.Second, 3 * time.Second, 10 * time.Second}

// WithRetry executes an operation, retrying transient failures with a fixed
// backoff sequence. Permanent failures are returned immediately. A nil or
// empty delays slice falls back to DefaultBackoff.
func WithRetry(ctx context.Context, operation func() error, delays []time.Duration) error {
	if len(delays) == 0 {
		delays = DefaultBackoff
	}

	var err error
	for attempt := 0; attempt <= len(delays); attempt++ {
		err = operation()
		if err == nil {
			return nil
		}

		if !IsTransient(err) {
			return err
		}

		if attempt == len(delays) {
			break
		}

		delay := delays[attempt]
		slog.Warn("Operation failed, retrying",
			"attempt", attempt+1,
			"max_attempts", len(delays)+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrMaxRetries, len(delays)+1, err)
}
