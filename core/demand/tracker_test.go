package demand

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve_Sequences(t *testing.T) {
	cases := []struct {
		name   string
		inputs []float64
		want   []Decision
	}{
		{"same demand twice", []float64{50, 50}, []Decision{None, None}},
		{"demand changes", []float64{50, 60}, []Decision{None, Reallocate}},
		{"changes back", []float64{50, 60, 50, 50}, []Decision{None, Reallocate, Reallocate, None}},
		{"zero baseline", []float64{0, 0, 10}, []Decision{None, None, Reallocate}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewTracker()
			got := make([]Decision, 0, len(tc.inputs))
			for _, d := range tc.inputs {
				got = append(got, tr.Observe("S1", d))
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestObserve_SitesAreIndependent(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, None, tr.Observe("S1", 50))
	assert.Equal(t, None, tr.Observe("S2", 60))
	assert.Equal(t, None, tr.Observe("S2", 60))
	assert.Equal(t, Reallocate, tr.Observe("S1", 60))

	v, ok := tr.Last("S1")
	require.True(t, ok)
	assert.Equal(t, 60.0, v)
	assert.Equal(t, 2, tr.Len())
}

func TestObserve_ConcurrentSameSite(t *testing.T) {
	tr := NewTracker()
	tr.Observe("S1", 50)

	var reallocs atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Observe("S1", 75) == Reallocate {
				reallocs.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), reallocs.Load())
	v, _ := tr.Last("S1")
	assert.Equal(t, 75.0, v)
}

func TestObserve_ConcurrentSites(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			site := fmt.Sprintf("S%d", i)
			tr.Observe(site, 10)
			tr.Observe(site, 20)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 32, tr.Len())
}

func TestClear(t *testing.T) {
	tr := NewTracker()
	tr.Observe("S1", 50)
	tr.Clear()
	assert.Zero(t, tr.Len())
	assert.Equal(t, None, tr.Observe("S1", 60))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "reallocate", Reallocate.String())
}
