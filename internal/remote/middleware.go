package remote

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/snapstate/internal/value"
)

// Middleware wraps a Dispatcher.
type Middleware func(Dispatcher) Dispatcher

// Chain applies middlewares so the first one is outermost.
func Chain(d Dispatcher, mws ...Middleware) Dispatcher {
	for i := len(mws) - 1; i >= 0; i-- {
		d = mws[i](d)
	}
	return d
}

// WithTimeout bounds each call. A zero timeout disables it.
func WithTimeout(timeout time.Duration) Middleware {
	return func(next Dispatcher) Dispatcher {
		return DispatcherFunc(func(ctx context.Context, actionType string, payload value.Object) error {
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return next.Call(ctx, actionType, payload)
		})
	}
}

// WithRetry retries temporary failures with exponential backoff. It respects
// context cancellation between retries.
//
// Parameters:
//   - maxRetries: maximum number of retry attempts (0 = no retry)
//   - baseBackoff: initial wait between retries, doubled each attempt
//   - logger: used to log retry attempts (may be nil for silent retries)
func WithRetry(maxRetries int, baseBackoff time.Duration, logger *slog.Logger) Middleware {
	return func(next Dispatcher) Dispatcher {
		return DispatcherFunc(func(ctx context.Context, actionType string, payload value.Object) error {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				err := next.Call(ctx, actionType, payload)
				if err == nil {
					return nil
				}
				lastErr = err

				if ctx.Err() != nil || !retryable(err) {
					return lastErr
				}

				if attempt < maxRetries {
					wait := baseBackoff * (1 << uint(attempt))
					if logger != nil {
						logger.WarnContext(ctx, "retrying remote call",
							"type", actionType,
							"attempt", attempt+1,
							"max_retries", maxRetries,
							"backoff_ms", wait.Milliseconds(),
							"error", err)
					}
					select {
					case <-ctx.Done():
						return lastErr
					case <-time.After(wait):
					}
				}
			}
			return lastErr
		})
	}
}

// retryable treats a CallError by its status; anything else is retried.
func retryable(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Temporary()
	}
	return true
}
