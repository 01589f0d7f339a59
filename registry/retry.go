package registry

import (
	"context"
	"errors"
	"net"
	"time"

	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/errcode"
)

// withRetry runs op up to MaxRetries+1 times with exponential backoff,
// retrying only failures classified as transient.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	delay := c.opts.RetryDelay
	var lastErr error

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isRetryableError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// isRetryableError classifies a failure as transient. Authentication
// failures and context cancellation are permanent; network timeouts and
// server-side errors are retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, auth.ErrBasicCredentialNotFound) {
		return false
	}

	var respErr *errcode.ErrorResponse
	if errors.As(err, &respErr) {
		return respErr.StatusCode >= 500 || respErr.StatusCode == 429
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
