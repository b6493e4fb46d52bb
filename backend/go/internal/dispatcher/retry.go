package dispatcher

import (
	"errors"
	"time"

	"jaqpot/backend/go/internal/entitymanager"
)

const (
	minRetryDelay = 500 * time.Millisecond
	maxRetryDelay = 30 * time.Second
)

// Retryable reports whether a handler error is transient, so the message
// must be delivered again instead of being acknowledged.
func Retryable(err error) bool {
	return errors.Is(err, entitymanager.ErrStoreUnavailable)
}

// RetryDelay is the wait before redelivery attempt n (starting at 1). It
// doubles from 500ms and is capped at 30s.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := minRetryDelay
	for i := 1; i < attempt && d < maxRetryDelay; i++ {
		d *= 2
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}
