package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultMaxRetries = 3
	defaultBackoff    = 500 * time.Millisecond
	maxBackoff        = 30 * time.Second
)

// rateLimitRetrier re-sends requests that were rejected with 429 Too Many Requests.
//
// No other status is retried.
type rateLimitRetrier struct {
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
	logger      *log.Logger
}

func (r *rateLimitRetrier) do(req *http.Request) (*http.Response, error) {
	attempts := r.maxAttempts
	if attempts <= 0 {
		attempts = defaultMaxRetries
	}
	backoff := r.backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	if req.Body != nil && req.GetBody == nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		req.Body.Close()
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	ctx := req.Context()
	for attempt := range attempts {
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to reset request body: %w", err)
			}
			req.Body = body
		}

		resp, err := r.client.Do(req)
		if err != nil || resp.StatusCode != http.StatusTooManyRequests || attempt == attempts-1 {
			return resp, err
		}

		wait := parseRetryAfter(resp)
		if wait == 0 {
			wait = backoff * time.Duration(1<<attempt)
		}
		wait = min(wait, maxBackoff)
		resp.Body.Close()

		if r.logger != nil {
			r.logger.Warn("rate limited, retrying", "url", req.URL.Path, "attempt", attempt+1, "wait", wait)
		}

		if err := sleepWithContext(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts", attempts)
}

func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(retryAfter); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}

	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
