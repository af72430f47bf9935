package search

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// RetryPolicy is the explicit retry contract for one provider HTTP call.
// Transient failures (network errors, 5xx) are retried with exponential
// backoff; rate limits (429/430) and other 4xx are returned immediately so
// the health tracker can act on them.
type RetryPolicy struct {
	MaxAttempts int           // Total attempts including the first
	BaseDelay   time.Duration // Delay before the second attempt
	Cap         time.Duration // Upper bound on the per-attempt delay
}

// DefaultRetryPolicy bounds transient retries to 3 attempts.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	Cap:         5 * time.Second,
}

// doWithRetry issues a GET, retrying transient failures under the policy.
// The caller owns the response body on success.
func doWithRetry(ctx context.Context, client *http.Client, provider, fullURL string, headers map[string]string, policy RetryPolicy) (*http.Response, error) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	delay := policy.BaseDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if policy.Cap > 0 && delay > policy.Cap {
				delay = policy.Cap
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s request: %w", provider, err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("failed to execute %s request: %w", provider, err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 430:
			// Rate limits are never retried within the same call.
			resp.Body.Close()
			return nil, &HTTPError{Provider: provider, StatusCode: resp.StatusCode}
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = &HTTPError{Provider: provider, StatusCode: resp.StatusCode}
			continue
		default:
			resp.Body.Close()
			return nil, &HTTPError{Provider: provider, StatusCode: resp.StatusCode}
		}
	}

	return nil, lastErr
}
