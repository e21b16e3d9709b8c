// Package ratelimit contains the governor that paces and bounds calls to
// external model services.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Config tunes a Governor.
type Config struct {
	// RequestsPerMinute is inverted into the minimum spacing between two
	// calls sharing a pacing key; <= 0 disables pacing.
	RequestsPerMinute int
	// MaxConcurrent is the shared ceiling on in-flight governed calls.
	MaxConcurrent int64
	// FailureThreshold is the consecutive-failure count after which
	// ActiveModel substitutes the fallback.
	FailureThreshold int
	// FallbackModel is substituted for a persistently failing model;
	// empty disables substitution.
	FallbackModel string
}

// Governor enforces a minimum inter-request spacing per key and a global
// concurrency ceiling shared by all keys. Each model (and the hosted parser)
// has its own pacing clock; the ceiling is one pool. Waiters are FIFO: the
// semaphore serves in arrival order and pacing slots are reserved under the
// mutex at arrival time.
type Governor struct {
	cfg     Config
	spacing time.Duration
	sem     *semaphore.Weighted

	mu       sync.Mutex
	clocks   map[string]time.Time // key -> next allowed start
	failures map[string]int       // model -> consecutive failures

	now func() time.Time
}

// NewGovernor creates a governor from cfg.
func NewGovernor(cfg Config) *Governor {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	g := &Governor{
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		clocks:   make(map[string]time.Time),
		failures: make(map[string]int),
		now:      time.Now,
	}
	if cfg.RequestsPerMinute > 0 {
		g.spacing = time.Minute / time.Duration(cfg.RequestsPerMinute)
	}
	return g
}

// Acquire blocks until both a concurrency slot and the pacing slot for key
// are held, then returns the release function. The release must be called
// exactly once, regardless of call outcome.
func (g *Governor) Acquire(ctx context.Context, key string) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	if g.spacing > 0 {
		g.mu.Lock()
		now := g.now()
		slot := g.clocks[key]
		if slot.Before(now) {
			slot = now
		}
		g.clocks[key] = slot.Add(g.spacing)
		g.mu.Unlock()

		if wait := slot.Sub(now); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				g.sem.Release(1)
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return func() { g.sem.Release(1) }, nil
}

// RecordFailure notes a failed call of model for fallback tracking.
func (g *Governor) RecordFailure(model string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[model]++
	if g.failures[model] == g.cfg.FailureThreshold && g.fallbackFor(model) != model {
		slog.Warn("Model reached failure threshold, switching to fallback",
			"model", model,
			"fallback", g.cfg.FallbackModel,
			"consecutive_failures", g.failures[model])
	}
}

// RecordSuccess resets the consecutive-failure count of model.
func (g *Governor) RecordSuccess(model string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.failures, model)
}

// Fallback returns the configured fallback model, empty when unset.
func (g *Governor) Fallback() string {
	return g.cfg.FallbackModel
}

// ActiveModel resolves the model to call: the fallback once model has
// accumulated FailureThreshold consecutive failures, model itself otherwise.
func (g *Governor) ActiveModel(model string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cfg.FailureThreshold > 0 && g.failures[model] >= g.cfg.FailureThreshold {
		return g.fallbackFor(model)
	}
	return model
}

func (g *Governor) fallbackFor(model string) string {
	if g.cfg.FallbackModel == "" || g.cfg.FallbackModel == model {
		return model
	}
	return g.cfg.FallbackModel
}
