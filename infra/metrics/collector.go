package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/sitepower/core/events"
	"github.com/kilianp07/sitepower/internal/eventbus"
)

// SiteStatus is the latest activity seen for one site.
type SiteStatus struct {
	SiteNo               string    `json:"site_no"`
	Demand               float64   `json:"demand"`
	DemandChangedAt      time.Time `json:"demand_changed_at,omitempty"`
	LastTaskID           string    `json:"last_task_id,omitempty"`
	LastReallocationAt   time.Time `json:"last_reallocation_at,omitempty"`
	Adjusted             int       `json:"adjusted"`
	Shortfall            float64   `json:"shortfall"`
	CapacityInsufficient bool      `json:"capacity_insufficient"`
	LastError            string    `json:"last_error,omitempty"`
	AlertsRaised         int       `json:"alerts_raised"`
	AlertsResolved       int       `json:"alerts_resolved"`
}

// Status is a point-in-time copy of the board.
type Status struct {
	Started  time.Time        `json:"started"`
	Sites    []SiteStatus     `json:"sites"`
	Messages map[string]int64 `json:"messages"`
}

// StatusBoard aggregates bus events since process start.
type StatusBoard struct {
	mu       sync.RWMutex
	started  time.Time
	sites    map[string]*SiteStatus
	messages map[string]int64
	now      func() time.Time
}

// NewStatusBoard returns an empty board.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{
		started:  time.Now().UTC(),
		sites:    map[string]*SiteStatus{},
		messages: map[string]int64{},
		now:      time.Now,
	}
}

func (b *StatusBoard) site(no string) *SiteStatus {
	s, ok := b.sites[no]
	if !ok {
		s = &SiteStatus{SiteNo: no}
		b.sites[no] = s
	}
	return s
}

// Apply folds one event into the board. Unknown events are ignored.
func (b *StatusBoard) Apply(ev eventbus.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch e := ev.(type) {
	case events.DemandChangeEvent:
		s := b.site(e.SiteNo)
		s.Demand = e.Demand
		s.DemandChangedAt = e.Time
	case events.ReallocationEvent:
		if e.DryRun {
			return
		}
		s := b.site(e.SiteNo)
		s.LastTaskID = e.TaskID
		s.LastReallocationAt = b.now().UTC()
		s.Adjusted = e.Adjusted
		s.Shortfall = e.Shortfall
		s.CapacityInsufficient = e.CapacityInsufficient
		s.LastError = ""
		if e.Err != nil && !e.CapacityInsufficient {
			s.LastError = e.Err.Error()
		}
	case events.AlertEvent:
		s := b.site(e.Alert.SiteNo)
		switch e.Transition {
		case events.AlertRaised:
			s.AlertsRaised++
		case events.AlertResolved:
			s.AlertsResolved++
		}
	case events.MessageEvent:
		b.messages[e.Outcome]++
	}
}

// Snapshot returns a copy of the board with sites ordered by number.
func (b *StatusBoard) Snapshot() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := Status{Started: b.started, Sites: make([]SiteStatus, 0, len(b.sites)), Messages: make(map[string]int64, len(b.messages))}
	for _, s := range b.sites {
		st.Sites = append(st.Sites, *s)
	}
	sort.Slice(st.Sites, func(i, j int) bool { return st.Sites[i].SiteNo < st.Sites[j].SiteNo })
	for k, v := range b.messages {
		st.Messages[k] = v
	}
	return st
}

// StartEventCollector subscribes to the event bus and folds every event into
// board. It stops when the context is canceled or the bus is closed; the
// returned channel is closed once the collector has exited.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, board *StatusBoard) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || board == nil {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				board.Apply(ev)
			}
		}
	}()
	return done
}
