package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "academic360-notifications/internal/common/errors"
)

// RetryConfig defines retry behavior for transient failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = RetryConfig{
	MaxRetries: 5,
	BaseDelay:  time.Second,
	MaxDelay:   10 * time.Second,
}

// WithBackoff runs op until it succeeds, returns a permanent error or the
// retries are exhausted. Delays double from BaseDelay up to MaxDelay.
func WithBackoff(ctx context.Context, operation string, cfg RetryConfig, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransient(err) || attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.BaseDelay * time.Duration(1<<attempt)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled after %d attempts: %w", operation, attempt+1, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed: %w", operation, lastErr)
}

// isTransient reports whether err looks like a connectivity problem.
func isTransient(err error) bool {
	if stdErr, ok := apperrors.AsStandard(err); ok {
		return stdErr.Retryable
	}

	msg := strings.ToLower(err.Error())
	transientPhrases := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"eof",
	}
	for _, phrase := range transientPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
