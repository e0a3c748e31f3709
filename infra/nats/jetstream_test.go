package nats

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sitepower/core/model"
	"github.com/kilianp07/sitepower/infra/logger"
)

// runJetStream starts an in-process server with JetStream enabled.
func runJetStream(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func TestSource_JetStreamKeepsOrderAfterNak(t *testing.T) {
	url := runJetStream(t)
	cfg := Config{URL: url, Stream: "TELE", CreateStream: true, FetchWaitMS: 200, NakDelayMS: 50}
	cfg.SetDefaults()
	src, err := NewSource(cfg, []string{"tele.power"}, logger.NopLogger{})
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()
	js, err := nc.JetStream()
	require.NoError(t, err)
	for _, p := range []string{"m1", "m2", "m3"} {
		_, err := js.Publish("tele.power", []byte(p))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var seen []string
	naked := false
	for len(seen) < 3 {
		msgs, err := src.Fetch(ctx, 1)
		require.NoError(t, err)
		for _, m := range msgs {
			if !naked {
				naked = true
				require.Equal(t, "m1", string(m.Payload()))
				require.NoError(t, m.Nak(ctx))
				continue
			}
			seen = append(seen, string(m.Payload()))
			require.NoError(t, m.Ack(ctx))
		}
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, seen)

	// nothing is redelivered once everything is acknowledged
	msgs, err := src.Fetch(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestPublisher_JetStreamDropsRepublishedProfile(t *testing.T) {
	url := runJetStream(t)
	cfg := Config{URL: url}
	cfg.SetDefaults()
	pub, err := NewPublisher(cfg, "power.out", logger.NopLogger{})
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	js, err := pub.conn.JetStream()
	require.NoError(t, err)
	require.NoError(t, EnsureStream(js, "OUT", []string{"power.out"}))

	ctx := context.Background()
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	prof := model.PowerProfile{ChargerSN: "C1", Power: 11, Timestamp: ts}
	require.NoError(t, pub.PublishProfile(ctx, prof))
	require.NoError(t, pub.PublishProfile(ctx, prof))
	require.NoError(t, pub.PublishProfile(ctx, model.PowerProfile{ChargerSN: "C2", Power: 11, Timestamp: ts}))

	info, err := js.StreamInfo("OUT")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.State.Msgs)
}
