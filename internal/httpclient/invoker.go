// Package httpclient implements the resilient invoker shared by both
// provider clients. It wraps a single HTTP call with retry, exponential
// backoff plus jitter, rate-limit pausing, and permanent-vs-transient
// error classification, so the retry discipline lives in exactly one place.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/steadycalls/mailforge/internal/constants"
	"github.com/steadycalls/mailforge/internal/ctxutil"
	mferrors "github.com/steadycalls/mailforge/internal/errors"
)

// Doer abstracts the underlying HTTP client so tests can substitute a stub.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryConfig tunes the invoker's retry behavior.
type RetryConfig struct {
	// MaxRetries is the total attempt budget for one call.
	MaxRetries int

	// InitialDelay seeds the exponential backoff for transient errors.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff growth.
	MaxDelay time.Duration

	// RateLimitDelay is the fixed pause after a 429 response.
	// Rate-limit waits never grow exponentially.
	RateLimitDelay time.Duration

	// JitterMax is the upper bound of the uniform random jitter added to
	// each backoff delay to avoid synchronized retries.
	JitterMax time.Duration
}

// DefaultRetryConfig returns the standard retry tuning.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     constants.DefaultMaxRetries,
		InitialDelay:   constants.DefaultInitialRetryDelay,
		MaxDelay:       constants.DefaultMaxRetryDelay,
		RateLimitDelay: constants.DefaultRateLimitDelay,
		JitterMax:      constants.DefaultRetryJitterMax,
	}
}

// Response is the minimal response surface the provider clients need.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Invoker executes HTTP calls with the shared resilience policy.
// Safe for concurrent use from multiple pipeline workers.
type Invoker struct {
	client Doer
	cfg    RetryConfig
	logger zerolog.Logger

	// sleep is overridable in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error

	// jitter returns a random duration in [0, max).
	jitter func(max time.Duration) time.Duration
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(client Doer) Option {
	return func(i *Invoker) {
		i.client = client
	}
}

// WithSleep substitutes the wait function. Intended for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(i *Invoker) {
		i.sleep = sleep
	}
}

// WithJitter substitutes the jitter source. Intended for tests.
func WithJitter(jitter func(max time.Duration) time.Duration) Option {
	return func(i *Invoker) {
		i.jitter = jitter
	}
}

// New creates an Invoker with the given retry tuning.
func New(cfg RetryConfig, logger zerolog.Logger, opts ...Option) *Invoker {
	inv := &Invoker{
		client: &http.Client{Timeout: 30 * time.Second},
		cfg:    cfg,
		logger: logger,
		sleep:  ctxutil.Sleep,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max))) //nolint:gosec // non-cryptographic jitter
		},
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// permanentStatuses are client errors that must never be retried.
//
//nolint:gochecknoglobals // Read-only lookup table
var permanentStatuses = map[int]bool{
	http.StatusBadRequest:   true,
	http.StatusUnauthorized: true,
	http.StatusForbidden:    true,
	http.StatusNotFound:     true,
	http.StatusConflict:     true,
}

// Invoke performs one logical HTTP call with the full resilience policy.
// body may be nil; header may be nil. On success the full response body is
// returned. Failures are classified:
//
//   - 429: fixed RateLimitDelay pause, then retry (no exponential growth)
//   - 5xx or transport error: exponential backoff with jitter, then retry
//   - 400/401/403/404/409: immediate ErrPermanent, no retry
//   - budget exhausted: ErrRetriesExhausted wrapping the last error
func (i *Invoker) Invoke(ctx context.Context, method, url string, body []byte, header http.Header) (*Response, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	logger := i.logger.With().
		Str("request_id", requestID).
		Str("method", method).
		Str("url", url).
		Logger()

	var lastErr error

	for attempt := 1; attempt <= i.cfg.MaxRetries; attempt++ {
		logger.Debug().Int("attempt", attempt).Msg("invoking request")

		resp, err := i.doOnce(ctx, method, url, body, header)
		if err == nil && resp.StatusCode < 400 {
			return resp, nil
		}

		if err != nil {
			// Transport-level failure: same backoff path as 5xx.
			lastErr = err
			if ctxErr := ctxutil.Canceled(ctx); ctxErr != nil {
				return nil, ctxErr
			}
			if attempt < i.cfg.MaxRetries {
				if waitErr := i.backoff(ctx, logger, attempt, lastErr); waitErr != nil {
					return nil, waitErr
				}
			}
			continue
		}

		httpErr := &mferrors.HTTPError{
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        url,
			Body:       truncateBody(resp.Body),
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: %w", mferrors.ErrRateLimited, httpErr)
			if attempt < i.cfg.MaxRetries {
				logger.Warn().
					Int("attempt", attempt).
					Dur("delay", i.cfg.RateLimitDelay).
					Msg("rate limited, pausing before retry")
				if waitErr := i.sleep(ctx, i.cfg.RateLimitDelay); waitErr != nil {
					return nil, waitErr
				}
			}

		case permanentStatuses[resp.StatusCode]:
			return nil, fmt.Errorf("%w: %w", mferrors.ErrPermanent, httpErr)

		default:
			// 5xx and anything else unexpected: transient.
			lastErr = httpErr
			if attempt < i.cfg.MaxRetries {
				if waitErr := i.backoff(ctx, logger, attempt, lastErr); waitErr != nil {
					return nil, waitErr
				}
			}
		}
	}

	return nil, fmt.Errorf("%w: %d attempts: %w", mferrors.ErrRetriesExhausted, i.cfg.MaxRetries, lastErr)
}

// doOnce executes a single HTTP attempt and drains the response body.
func (i *Invoker) doOnce(ctx context.Context, method, url string, body []byte, header http.Header) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // HTTP response body close

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// backoff waits the exponential delay for the given attempt. The delay is
// min(initial * 2^(attempt-1), max) plus uniform jitter in [0, JitterMax).
func (i *Invoker) backoff(ctx context.Context, logger zerolog.Logger, attempt int, cause error) error {
	delay := i.cfg.InitialDelay << (attempt - 1)
	if delay > i.cfg.MaxDelay || delay <= 0 {
		delay = i.cfg.MaxDelay
	}
	delay += i.jitter(i.cfg.JitterMax)

	logger.Warn().
		Err(cause).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("transient failure, backing off before retry")

	return i.sleep(ctx, delay)
}

// truncateBody bounds response bodies embedded in errors so a large error
// page cannot bloat the domain's error audit trail.
func truncateBody(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
