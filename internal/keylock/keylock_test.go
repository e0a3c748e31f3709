package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	m := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("S1")
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxSeen)
	}
	if m.Len() != 0 {
		t.Fatalf("expected entries released, got %d", m.Len())
	}
}

func TestLockDifferentKeysIndependent(t *testing.T) {
	m := New()
	unlockA := m.Lock("A")
	done := make(chan struct{})
	go func() {
		unlockB := m.Lock("B")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock on B blocked by A")
	}
	unlockA()
}

func TestUnlockIdempotent(t *testing.T) {
	m := New()
	unlock := m.Lock("A")
	unlock()
	unlock()
	if m.Len() != 0 {
		t.Fatalf("expected no entries, got %d", m.Len())
	}
}
