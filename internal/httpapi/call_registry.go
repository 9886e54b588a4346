package httpapi

import (
	"sync"
	"sync/atomic"
)

// CallRegistry counts live fact-check sessions so shutdown can drain them:
// once draining starts, Add refuses new sessions while existing ones run to
// completion. The mutex keeps the draining check and the WaitGroup increment
// atomic, so no session can slip in between StartDraining and Wait.
type CallRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64
}

func NewCallRegistry() *CallRegistry {
	return &CallRegistry{}
}

// Add registers a session. It returns false when the registry is draining,
// in which case the caller must not call Done.
func (cr *CallRegistry) Add() bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if cr.draining {
		return false
	}
	cr.wg.Add(1)
	cr.count.Add(1)
	return true
}

// Done releases a session. Call exactly once per successful Add.
func (cr *CallRegistry) Done() {
	cr.count.Add(-1)
	cr.wg.Done()
}

// StartDraining makes all future Add calls fail.
func (cr *CallRegistry) StartDraining() {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.draining = true
}

// IsDraining reports whether new sessions are being refused.
func (cr *CallRegistry) IsDraining() bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.draining
}

// ActiveCount returns the number of sessions currently running.
func (cr *CallRegistry) ActiveCount() int64 {
	return cr.count.Load()
}

// Wait blocks until every registered session has called Done.
func (cr *CallRegistry) Wait() {
	cr.wg.Wait()
}
