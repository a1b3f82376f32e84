package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/logging"
)

const (
	defaultRetryAttempts  = 3
	defaultInitialBackoff = 50 * time.Millisecond
	defaultMaxBackoff     = time.Second
)

// retrier re-runs read operations that fail with transient errors.
type retrier struct {
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func newRetrier(logger *zap.Logger) retrier {
	return retrier{
		logger:         logger,
		retryAttempts:  defaultRetryAttempts,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
}

func (r retrier) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("store operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, ErrNotFound) {
			return logging.NewOperationError(operation, requestID, err)
		}
		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("store operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient store error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation by the caller is final.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
