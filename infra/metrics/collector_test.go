package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sitepower/core/allocation"
	"github.com/kilianp07/sitepower/core/events"
	"github.com/kilianp07/sitepower/core/model"
	"github.com/kilianp07/sitepower/internal/eventbus"
)

func TestStatusBoard_Apply(t *testing.T) {
	b := NewStatusBoard()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	b.Apply(events.DemandChangeEvent{SiteNo: "S2", Previous: 50, Demand: 40, Time: fixed})
	b.Apply(events.ReallocationEvent{TaskID: "t1", SiteNo: "S2", Adjusted: 2, Shortfall: 5, CapacityInsufficient: true,
		Err: allocation.ErrCapacityInsufficient})
	b.Apply(events.ReallocationEvent{TaskID: "dry", SiteNo: "S2", DryRun: true})
	b.Apply(events.ReallocationEvent{TaskID: "t2", SiteNo: "S1", Err: errors.New("publish failed")})
	b.Apply(events.AlertEvent{Alert: model.Alert{SiteNo: "S1"}, Transition: events.AlertRaised})
	b.Apply(events.AlertEvent{Alert: model.Alert{SiteNo: "S1"}, Transition: events.AlertResolved})
	b.Apply(events.MessageEvent{Outcome: events.OutcomeAcked})
	b.Apply(events.MessageEvent{Outcome: events.OutcomeAcked})
	b.Apply("ignored")

	st := b.Snapshot()
	require.Len(t, st.Sites, 2)
	assert.Equal(t, "S1", st.Sites[0].SiteNo)
	assert.Equal(t, "publish failed", st.Sites[0].LastError)
	assert.Equal(t, 1, st.Sites[0].AlertsRaised)
	assert.Equal(t, 1, st.Sites[0].AlertsResolved)

	s2 := st.Sites[1]
	assert.Equal(t, 40.0, s2.Demand)
	assert.Equal(t, "t1", s2.LastTaskID)
	assert.Equal(t, fixed, s2.LastReallocationAt)
	assert.True(t, s2.CapacityInsufficient)
	assert.Empty(t, s2.LastError)
	assert.Equal(t, int64(2), st.Messages[events.OutcomeAcked])
}

func TestStartEventCollector(t *testing.T) {
	bus := eventbus.New()
	board := NewStatusBoard()
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventCollector(ctx, bus, board)

	bus.Publish(events.DemandChangeEvent{SiteNo: "S1", Demand: 80})
	require.Eventually(t, func() bool {
		return len(board.Snapshot().Sites) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestStartEventCollector_StopsOnBusClose(t *testing.T) {
	bus := eventbus.New()
	done := StartEventCollector(context.Background(), bus, NewStatusBoard())
	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestStartEventCollector_NilBus(t *testing.T) {
	done := StartEventCollector(context.Background(), nil, NewStatusBoard())
	_, open := <-done
	assert.False(t, open)
}
