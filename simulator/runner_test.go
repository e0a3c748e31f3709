package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/core/model"
	"github.com/kilianp07/sitepower/infra/logger"
)

type fakeTransport struct {
	mu        sync.Mutex
	published []Message
	handlers  map[string]func([]byte)
}

func (f *fakeTransport) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, Message{Topic: topic, Payload: payload})
	return nil
}

func (f *fakeTransport) Subscribe(topic string, fn func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = map[string]func([]byte){}
	}
	f.handlers[topic] = fn
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeTransport) deliver(topic string, payload []byte) {
	f.mu.Lock()
	fn := f.handlers[topic]
	f.mu.Unlock()
	fn(payload)
}

func TestRun_PublishesAndAppliesProfiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Interval = 5 * time.Millisecond
	site := NewSite(cfg)
	tr := &fakeTransport{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, site, tr, logger.NopLogger{}) }()

	require.Eventually(t, func() bool { return tr.count() >= 4 }, 2*time.Second, 5*time.Millisecond)

	raw, err := bus.EncodeProfile(model.PowerProfile{ChargerSN: "SIM-1-C1", Power: 7}, time.Now())
	require.NoError(t, err)
	tr.deliver(cfg.Topics.PowerAllocation, []byte("not json"))
	tr.deliver(cfg.Topics.PowerAllocation, raw)

	limit, ok := site.Limit("SIM-1-C1")
	require.True(t, ok)
	assert.Equal(t, 7.0, limit)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("simulator did not stop")
	}
}
