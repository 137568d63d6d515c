// Package external is the anti-corruption layer between the retrieval
// logic and the public data API. All outbound HTTP calls are routed
// through the resilient transport, which enforces consistent patterns:
// circuit breaking, bounded retries with exponential backoff, request-ID
// propagation, and error mapping to the domain taxonomy.
package external

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"stopsearch/internal/types"

	"github.com/sony/gobreaker/v2"
)

// RetryPolicy configures the retry behavior for the transport. Retries
// are local to a single request; the calling layer never re-issues a
// request itself.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns sensible defaults for the public data API.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// Transport wraps an *http.Client and a circuit breaker so every upstream
// call shares the same resilience behavior.
type Transport struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	policy    RetryPolicy
	userAgent string
	sleepFn   func(time.Duration) // overridable for tests
}

// TransportOption is a functional option for configuring a Transport.
type TransportOption func(*Transport)

// WithSleepFunc overrides the sleep function used between retries.
// Intended for testing to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) TransportOption {
	return func(t *Transport) {
		t.sleepFn = fn
	}
}

// WithBreaker replaces the default circuit breaker, for tests that need
// fine-grained control or callers sharing a breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) TransportOption {
	return func(t *Transport) {
		t.breaker = cb
	}
}

// NewTransport creates a Transport with the given http client, breaker
// name, retry policy, and User-Agent string.
func NewTransport(httpClient *http.Client, breakerName string, policy RetryPolicy, userAgent string, opts ...TransportOption) *Transport {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	t := &Transport{
		client:    httpClient,
		breaker:   cb,
		policy:    policy,
		userAgent: userAgent,
		sleepFn:   time.Sleep,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do executes the HTTP request with:
//  1. Request-ID injection (X-Request-Id from context)
//  2. User-Agent header injection
//  3. Circuit breaker wrapping
//  4. Retry on 429/5xx, respecting Retry-After headers
//  5. Error mapping to types.AppError
//
// On success (any status other than 429/5xx), Do returns the response
// as-is and the caller owns the body. On exhausted retries or an open
// breaker, Do returns a types.AppError with the matching upstream code.
func (t *Transport) Do(req *http.Request) (*http.Response, error) {
	if reqID := types.GetRequestID(req.Context()); reqID != "" {
		req.Header.Set("X-Request-Id", reqID)
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	// Snapshot the body so form POSTs can be replayed on retries.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeInternalUnexpected,
				"failed to read request body for retry support",
				err,
			)
		}
		req.Body.Close()
	}

	var lastResp *http.Response
	var lastErr error

	maxAttempts := 1 + t.policy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := t.breaker.Execute(func() (*http.Response, error) {
			r, doErr := t.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			// 5xx and 429 count as failures for the breaker.
			if r.StatusCode >= 500 {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			if r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned 429")
			}
			return r, nil
		})

		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		// An open breaker means the upstream is already known-bad; do not
		// burn more attempts.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}

		// Only 429 and 5xx are retryable.
		if resp != nil && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return resp, nil
		}

		if attempt < maxAttempts-1 {
			t.sleepFn(t.computeBackoff(attempt, resp))
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}

	return nil, t.mapError(lastResp, lastErr)
}

// computeBackoff determines the wait before the next retry attempt. It
// respects a Retry-After header when present, otherwise uses exponential
// backoff with full jitter clamped to [MinWait, MaxWait].
func (t *Transport) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				wait := time.Duration(seconds) * time.Second
				if wait > t.policy.MaxWait {
					wait = t.policy.MaxWait
				}
				return wait
			}
			if at, err := http.ParseTime(retryAfter); err == nil {
				wait := time.Until(at)
				if wait <= 0 {
					return t.policy.MinWait
				}
				if wait > t.policy.MaxWait {
					wait = t.policy.MaxWait
				}
				return wait
			}
		}
	}

	base := float64(t.policy.MinWait) * math.Pow(2, float64(attempt))
	if max := float64(t.policy.MaxWait); base > max {
		base = max
	}
	min := float64(t.policy.MinWait)
	if base <= min {
		return t.policy.MinWait
	}
	return time.Duration(min + rand.Float64()*(base-min))
}

// mapError translates HTTP-level failures into domain AppErrors.
func (t *Transport) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			"circuit breaker is open; upstream unavailable",
			err,
		)
	}

	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(
				types.ErrCodeUpstreamRateLimited,
				"upstream rate limit exceeded",
				err,
			)
		case resp.StatusCode >= 500:
			return types.NewAppError(
				types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("upstream returned %d after retries", resp.StatusCode),
				err,
			)
		}
	}

	return types.NewAppError(
		types.ErrCodeUpstreamUnavailable,
		"upstream request failed",
		err,
	)
}
