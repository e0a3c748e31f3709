// Package demand keeps the last demand observed per site and decides when a
// change must trigger a reallocation.
package demand

import (
	"sync"

	"github.com/kilianp07/sitepower/internal/keylock"
)

// Decision is the outcome of an observation.
type Decision int

const (
	// None means the demand is unchanged or seen for the first time.
	None Decision = iota
	// Reallocate means the demand moved since the last observation.
	Reallocate
)

func (d Decision) String() string {
	switch d {
	case None:
		return "none"
	case Reallocate:
		return "reallocate"
	default:
		return "unknown"
	}
}

// Tracker caches the last demand per site. Observations for the same site are
// serialized; different sites proceed in parallel.
type Tracker struct {
	locks *keylock.Mutex

	mu   sync.RWMutex
	last map[string]float64
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{locks: keylock.New(), last: make(map[string]float64)}
}

// Observe records demand for siteNo. The first sighting of a site only
// establishes the baseline.
func (t *Tracker) Observe(siteNo string, demand float64) Decision {
	unlock := t.locks.Lock(siteNo)
	defer unlock()

	t.mu.RLock()
	prev, ok := t.last[siteNo]
	t.mu.RUnlock()

	if ok && prev == demand {
		return None
	}
	t.mu.Lock()
	t.last[siteNo] = demand
	t.mu.Unlock()
	if !ok {
		return None
	}
	return Reallocate
}

// Last returns the cached demand of siteNo.
func (t *Tracker) Last(siteNo string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.last[siteNo]
	return v, ok
}

// Len returns the number of sites seen.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.last)
}

// Clear drops every entry. Called at shutdown.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.last = make(map[string]float64)
	t.mu.Unlock()
}
