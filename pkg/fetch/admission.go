package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Admission throttles fetches per registered domain and in total. Each domain
// gets a semaphore of capacity concurrentLimit plus the timestamp of its last
// completed fetch; a fetch acquires a domain slot, waits out the cool-down
// since that timestamp, then takes a global slot. Release records the
// completion time whether or not the fetch succeeded. Waiters on the same
// domain are served in arrival order.
type Admission struct {
	perDomain int64
	coolDown  time.Duration
	global    *semaphore.Weighted

	mu      sync.Mutex
	domains map[string]*domainState

	now func() time.Time
}

type domainState struct {
	slots *semaphore.Weighted

	mu             sync.Mutex
	lastCompletion time.Time
}

// NewAdmission creates an admission controller. concurrentLimit bounds both
// the per-domain slots and the global fetch pool.
func NewAdmission(concurrentLimit int, coolDown time.Duration) *Admission {
	if concurrentLimit < 1 {
		concurrentLimit = 1
	}
	return &Admission{
		perDomain: int64(concurrentLimit),
		coolDown:  coolDown,
		global:    semaphore.NewWeighted(int64(concurrentLimit)),
		domains:   make(map[string]*domainState),
		now:       time.Now,
	}
}

// Acquire admits a fetch of rawURL, blocking on the domain slot, the domain
// cool-down and the global slot in that order. The returned release must be
// called exactly once when the fetch has finished, regardless of outcome.
func (a *Admission) Acquire(ctx context.Context, rawURL string) (func(), error) {
	domain, err := RegisteredDomain(rawURL)
	if err != nil {
		return nil, err
	}
	ds := a.domainFor(domain)

	if err := ds.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := a.waitCoolDown(ctx, ds); err != nil {
		ds.slots.Release(1)
		return nil, err
	}
	if err := a.global.Acquire(ctx, 1); err != nil {
		ds.slots.Release(1)
		return nil, err
	}

	return func() {
		ds.mu.Lock()
		ds.lastCompletion = a.now()
		ds.mu.Unlock()
		a.global.Release(1)
		ds.slots.Release(1)
	}, nil
}

func (a *Admission) domainFor(domain string) *domainState {
	a.mu.Lock()
	defer a.mu.Unlock()
	ds, ok := a.domains[domain]
	if !ok {
		ds = &domainState{slots: semaphore.NewWeighted(a.perDomain)}
		a.domains[domain] = ds
	}
	return ds
}

// waitCoolDown sleeps until the domain's cool-down window has passed,
// re-checking after each wait because a concurrent slot holder may have
// completed in the meantime.
func (a *Admission) waitCoolDown(ctx context.Context, ds *domainState) error {
	for {
		ds.mu.Lock()
		last := ds.lastCompletion
		ds.mu.Unlock()

		wait := a.coolDown - a.now().Sub(last)
		if last.IsZero() || wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
