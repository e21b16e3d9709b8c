package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/scourlabs/scour/pkg/ratelimit"
)

// RetryPolicy bounds the retry loop around one model call.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	BackoffFactor  float64
	MaxBackoff     time.Duration
	// RateLimitBackoff is the minimum wait after an HTTP 429.
	RateLimitBackoff time.Duration
}

// DefaultRetryPolicy returns the retry budget used for model calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      5,
		InitialBackoff:   500 * time.Millisecond,
		BackoffFactor:    2,
		MaxBackoff:       30 * time.Second,
		RateLimitBackoff: 5 * time.Second,
	}
}

// doWithRetry drives attempt until a 200 response, a terminal refusal, or an
// exhausted budget. Each attempt resolves the effective model through the
// governor, so a model that keeps failing is replaced by its fallback for the
// remainder of the call. A non-429 4xx gets exactly one direct fallback
// attempt before the call surfaces as refused. The returned done func frees
// the governor slot and must be called once the response body is consumed.
func doWithRetry(
	ctx context.Context,
	policy RetryPolicy,
	governor *ratelimit.Governor,
	requested string,
	logger *slog.Logger,
	attempt func(ctx context.Context, model string) (*http.Response, error),
) (*http.Response, func(), error) {
	model := governor.ActiveModel(requested)
	triedFallback := false
	rateLimited := false
	var retryAfter time.Duration
	var lastErr error

	for n := 0; n < policy.MaxAttempts; n++ {
		if n > 0 {
			if err := sleepBackoff(ctx, policy, n, rateLimited, retryAfter); err != nil {
				return nil, nil, err
			}
		}

		release, err := governor.Acquire(ctx, model)
		if err != nil {
			return nil, nil, err
		}

		resp, err := attempt(ctx, model)
		if err != nil {
			release()
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			governor.RecordFailure(model)
			logger.Warn("Model call failed, will retry",
				"model", model, "attempt", n+1, "error", err)
			lastErr = err
			rateLimited = false
			retryAfter = 0
			model = governor.ActiveModel(requested)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			governor.RecordSuccess(model)
			return resp, release, nil
		}

		body := readErrorBody(resp)
		release()
		governor.RecordFailure(model)
		lastErr = fmt.Errorf("upstream status %d: %s", resp.StatusCode, body)

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			rateLimited = true
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			logger.Warn("Model rate limited",
				"model", model, "attempt", n+1, "retry_after", retryAfter)
		case resp.StatusCode >= 500:
			rateLimited = false
			retryAfter = 0
			logger.Warn("Upstream error, will retry",
				"model", model, "status", resp.StatusCode, "attempt", n+1)
		default:
			fallback := governor.Fallback()
			if !triedFallback && fallback != "" && fallback != model {
				logger.Warn("Model refused request, retrying once on fallback",
					"model", model, "status", resp.StatusCode, "fallback", fallback)
				triedFallback = true
				rateLimited = false
				retryAfter = 0
				model = fallback
				continue
			}
			return nil, nil, fmt.Errorf("%w: status %d: %s", ErrUpstreamRefused, resp.StatusCode, body)
		}

		model = governor.ActiveModel(requested)
	}

	return nil, nil, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, policy.MaxAttempts, lastErr)
}

func sleepBackoff(ctx context.Context, policy RetryPolicy, attempt int, rateLimited bool, retryAfter time.Duration) error {
	d := time.Duration(float64(policy.InitialBackoff) * math.Pow(policy.BackoffFactor, float64(attempt-1)))
	if d > policy.MaxBackoff {
		d = policy.MaxBackoff
	}
	if rateLimited && d < policy.RateLimitBackoff {
		d = policy.RateLimitBackoff
	}
	if retryAfter > d {
		d = retryAfter
	}
	d += time.Duration(rand.Int63n(int64(d)/4 + 1))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func readErrorBody(resp *http.Response) string {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return strings.TrimSpace(string(body))
}
