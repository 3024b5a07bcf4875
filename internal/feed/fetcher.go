// Package feed implements HTTP access to the external data feeds: a shared
// rate-limited fetcher with retry and backoff, plus one client per feed type
// in the firms and aemet subpackages.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/firewatch/hotspot-ingest/internal/domain"
)

// Config tunes the retry and pacing behavior of a Fetcher.
type Config struct {
	// MaxAttempts bounds retries per request. Zero means the default of 5.
	MaxAttempts int

	// RateLimitStep is the backoff unit after HTTP 429: attempt 1 waits one
	// step, attempt 2 two steps, and so on. The ramp is deliberately linear;
	// an exponential schedule compounds too fast for the attempt budget the
	// providers tolerate. Zero means 10s.
	RateLimitStep time.Duration

	// TransientDelay is the fixed wait after a network-level failure.
	// Zero means 3s.
	TransientDelay time.Duration

	// Timeout is the per-request HTTP timeout. Zero means 10s.
	Timeout time.Duration

	// RequestsPerSecond optionally gates request starts. Zero disables the
	// limiter; retries and pacing still apply.
	RequestsPerSecond float64
}

const (
	defaultMaxAttempts    = 5
	defaultRateLimitStep  = 10 * time.Second
	defaultTransientDelay = 3 * time.Second
	defaultTimeout        = 10 * time.Second
)

// Fetcher issues GET requests with retry on throttling and transient failure.
// Non-success statuses other than 429 fail immediately as permanent.
type Fetcher struct {
	httpClient     *http.Client
	clock          clockwork.Clock
	limiter        *rate.Limiter
	logger         *slog.Logger
	maxAttempts    int
	rateLimitStep  time.Duration
	transientDelay time.Duration
}

// NewFetcher creates a Fetcher. A nil clock falls back to real time.
func NewFetcher(cfg Config, clock clockwork.Clock, logger *slog.Logger) *Fetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RateLimitStep <= 0 {
		cfg.RateLimitStep = defaultRateLimitStep
	}
	if cfg.TransientDelay <= 0 {
		cfg.TransientDelay = defaultTransientDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Fetcher{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		clock:          clock,
		limiter:        limiter,
		logger:         logger,
		maxAttempts:    cfg.MaxAttempts,
		rateLimitStep:  cfg.RateLimitStep,
		transientDelay: cfg.TransientDelay,
	}
}

// Get fetches the URL, retrying per the configured policy, and returns the
// response body. Extra headers (API keys) are applied to every attempt.
func (f *Fetcher) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	// A request that cannot be built will not improve with retrying.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchPermanent, Attempts: 1, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	var lastKind domain.FetchKind
	var lastStatus int
	var lastErr error

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait canceled: %w", err)
			}
		}

		body, status, err := f.doGet(req)
		switch {
		case err == nil && status == 0:
			return body, nil

		case status == http.StatusTooManyRequests:
			lastKind, lastStatus, lastErr = domain.FetchRateLimited, status, err
			delay := f.backoffDelay(attempt)
			f.logger.Warn("feed throttled, backing off",
				"url", url, "attempt", attempt, "delay", delay)
			if !f.sleep(ctx, delay) {
				return nil, ctx.Err()
			}

		case status != 0:
			// Any other non-success status is permanent for this request.
			return nil, &domain.FetchError{Kind: domain.FetchPermanent, Status: status, Attempts: attempt, Err: err}

		default:
			lastKind, lastStatus, lastErr = domain.FetchTransient, 0, err
			f.logger.Warn("feed request failed, retrying",
				"url", url, "attempt", attempt, "error", err)
			if !f.sleep(ctx, f.transientDelay) {
				return nil, ctx.Err()
			}
		}
	}

	return nil, &domain.FetchError{Kind: lastKind, Status: lastStatus, Attempts: f.maxAttempts, Err: lastErr}
}

// backoffDelay returns the wait before retrying attempt n after a 429:
// a linear ramp of n * RateLimitStep (10s, 20s, 30s... at the default step).
func (f *Fetcher) backoffDelay(attempt int) time.Duration {
	return time.Duration(attempt) * f.rateLimitStep
}

// doGet performs a single attempt. The request has no body, so the same one
// is safe to reissue. A non-success status is reported via the status return
// with a descriptive error; transport failures return status 0.
func (f *Fetcher) doGet(req *http.Request) ([]byte, int, error) {
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response body: %w", err)
	}
	return body, 0, nil
}

// sleep waits for d on the injected clock, returning false when the context
// is cancelled first.
func (f *Fetcher) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-f.clock.After(d):
		return true
	}
}
