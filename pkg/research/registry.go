package research

import (
	"context"
	"sync"
)

// RunRegistry tracks the cancel function of every active run so a session can
// be cancelled by id and so shutdown can stop all of them. A session has at
// most one active run at a time.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]context.CancelFunc
}

// NewRunRegistry creates an empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]context.CancelFunc)}
}

// Register records the cancel function for a session's run. It reports false
// when the session already has a run in flight, in which case the caller must
// not start a second one.
func (r *RunRegistry) Register(sessionID string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[sessionID]; exists {
		return false
	}
	r.runs[sessionID] = cancel
	return true
}

// Unregister removes a finished run.
func (r *RunRegistry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, sessionID)
}

// Cancel stops a session's active run. It reports whether one was in flight.
func (r *RunRegistry) Cancel(sessionID string) bool {
	r.mu.RLock()
	cancel, exists := r.runs[sessionID]
	r.mu.RUnlock()
	if exists {
		cancel()
	}
	return exists
}

// Active reports whether the session has a run in flight.
func (r *RunRegistry) Active(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.runs[sessionID]
	return exists
}

// Count returns the number of runs in flight.
func (r *RunRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// CancelAll stops every active run; used during shutdown.
func (r *RunRegistry) CancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cancel := range r.runs {
		cancel()
	}
}
