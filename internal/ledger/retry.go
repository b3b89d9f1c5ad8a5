package ledger

import (
	"context"
	"errors"
	"time"

	"housingledger/internal/core"
	"housingledger/internal/log"
)

const (
	baseRetryDelay = 25 * time.Millisecond
	maxRetryDelay  = time.Second
)

// conflictBackoff doubles from baseRetryDelay and caps at maxRetryDelay.
func conflictBackoff(attempt int) time.Duration {
	if attempt > 10 {
		return maxRetryDelay
	}
	d := baseRetryDelay << attempt
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// RetryOnConflict reruns fn while it fails with a concurrency conflict, up to
// attempts tries. Any other error is returned immediately.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil || !errors.Is(err, core.ErrConcurrencyConflict) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		delay := conflictBackoff(attempt)
		log.For(log.ComponentLedger).WarnContext(ctx, "Concurrency conflict, retrying",
			"attempt", attempt+1,
			"delay", delay,
			log.FieldError, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
