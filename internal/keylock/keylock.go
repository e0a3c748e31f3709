// Package keylock provides mutual exclusion keyed by an arbitrary string.
// Holders of different keys never block each other.
package keylock

import "sync"

// Mutex hands out one exclusive section per key. Entries are reference
// counted and released once the last holder unlocks, so the map only holds
// keys that are currently in use.
type Mutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New returns an empty keyed mutex.
func New() *Mutex {
	return &Mutex{locks: make(map[string]*entry)}
}

// Lock blocks until the section for key is free and returns the function
// releasing it. The returned function must be called exactly once.
func (m *Mutex) Lock(key string) (unlock func()) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.locks, key)
			}
			m.mu.Unlock()
		})
	}
}

// Len reports the number of keys currently held or waited on.
func (m *Mutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
