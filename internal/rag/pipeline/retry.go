package pipeline

import (
	"context"
	"errors"
	"time"

	"finsight/internal/rag/schema"
)

// withRetry runs fn up to attempts times with a doubling backoff between
// failures. Dimension mismatches are configuration errors and are never
// retried; context cancellation stops immediately.
func withRetry(ctx context.Context, attempts int, initialBackoff time.Duration, fn func(context.Context) error) error {
	backoff := initialBackoff
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if schema.IsDimensionMismatch(err) {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The parent context is gone; retrying cannot help.
			if ctx.Err() != nil {
				return err
			}
		}
		if attempt >= attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
