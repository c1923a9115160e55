package fetch

import (
	"context"
	"time"

	"github.com/jmgilman/go/errors"

	"github.com/jmgilman/go/appcrafted/internal/logging"
)

// retryOperation retries operation with exponential backoff while it fails
// with a retryable error.
func retryOperation(ctx context.Context, logger *logging.Logger, maxRetries int, delay time.Duration, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := delay * time.Duration(1<<(attempt-1))
			logger.Debug(ctx, "retrying request",
				"attempt", attempt,
				"backoff_ms", backoff.Milliseconds(),
				"error", lastErr.Error())

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Wrap(lastErr, errors.CodeTimeout, "context cancelled during retry")
			case <-timer.C:
			}
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			break
		}
	}

	return lastErr
}
