package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sitepower/config"
	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/core/model"
)

type memMessage struct {
	partition string
	payload   []byte
	acked     chan struct{}
}

func (m *memMessage) Partition() string { return m.partition }
func (m *memMessage) Payload() []byte   { return m.payload }

func (m *memMessage) Ack(context.Context) error {
	close(m.acked)
	return nil
}

func (m *memMessage) Nak(context.Context) error { return nil }

// memSource hands out queued messages one batch at a time.
type memSource struct {
	ch chan bus.Message
}

func (s *memSource) Fetch(ctx context.Context, _ int) ([]bus.Message, error) {
	select {
	case m := <-s.ch:
		return []bus.Message{m}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *memSource) Close() error { return nil }

type memPublisher struct {
	mu       sync.Mutex
	profiles []model.PowerProfile
}

func (p *memPublisher) PublishProfile(_ context.Context, prof model.PowerProfile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles = append(p.profiles, prof)
	return nil
}

func (p *memPublisher) Close() error { return nil }

func (p *memPublisher) published() []model.PowerProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.PowerProfile(nil), p.profiles...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Store.DSN = filepath.Join(t.TempDir(), "site.db")
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func powerMessage(demand float64) *memMessage {
	raw := fmt.Sprintf(`{"message_type":2,"data":{"session_id":"sess","site_no":"S1","charger_sn":"C1","soc":50,"power":60,"capacity":60,"demand":%v}}`, demand)
	return &memMessage{partition: "power_prediction", payload: []byte(raw), acked: make(chan struct{})}
}

func TestService_DemandDropPublishesProfile(t *testing.T) {
	src := &memSource{ch: make(chan bus.Message, 4)}
	pub := &memPublisher{}
	svc, err := New(testConfig(t), WithBus(src, pub))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, svc.Store.PutSite(ctx, model.Site{SiteNo: "S1", TotalPowerLimit: 200, Demand: 100, Active: true}))
	require.NoError(t, svc.Store.PutConnector(ctx, model.ConnectorState{SiteNo: "S1", ChargerSN: "C1", CurrentPower: 60, RatedPower: 120, Status: model.StatusCharging}))
	require.NoError(t, svc.Store.PutConnector(ctx, model.ConnectorState{SiteNo: "S1", ChargerSN: "C2", CurrentPower: 30, RatedPower: 60, Status: model.StatusCharging}))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()

	seedMsg, dropMsg := powerMessage(100), powerMessage(50)
	src.ch <- seedMsg
	src.ch <- dropMsg
	for _, m := range []*memMessage{seedMsg, dropMsg} {
		select {
		case <-m.acked:
		case <-time.After(2 * time.Second):
			t.Fatal("message not acknowledged")
		}
	}

	require.Eventually(t, func() bool { return len(pub.published()) == 2 }, 2*time.Second, 10*time.Millisecond)
	sns := map[string]bool{}
	for _, p := range pub.published() {
		sns[p.ChargerSN] = true
	}
	assert.Equal(t, map[string]bool{"C1": true, "C2": true}, sns)

	require.Eventually(t, func() bool {
		for _, s := range svc.Board.Snapshot().Sites {
			if s.SiteNo == "S1" && s.LastTaskID != "" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("service did not stop")
	}
	require.NoError(t, svc.Close())
}

func TestNew_InvalidComponents(t *testing.T) {
	cfg := testConfig(t)
	cfg.Components.Predictor.Type = "neural"
	_, err := New(cfg, WithBus(&memSource{ch: make(chan bus.Message)}, &memPublisher{}))
	assert.ErrorContains(t, err, "predictor")
}

func TestNew_StoreFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.DSN = filepath.Join(t.TempDir(), "missing", "dir", "site.db")
	_, err := New(cfg, WithBus(&memSource{ch: make(chan bus.Message)}, &memPublisher{}))
	assert.Error(t, err)
}
