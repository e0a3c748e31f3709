//go:build integration

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/sitepower/app"
	"github.com/kilianp07/sitepower/config"
	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/core/model"
	"github.com/kilianp07/sitepower/infra/logger"
	"github.com/kilianp07/sitepower/simulator"
)

func requireDocker(t *testing.T) {
	t.Helper()
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
}

func endpoint(t *testing.T, cont tc.Container, port, scheme string) string {
	t.Helper()
	ctx := context.Background()
	host, err := cont.Host(ctx)
	require.NoError(t, err)
	mapped, err := cont.MappedPort(ctx, port)
	require.NoError(t, err)
	return fmt.Sprintf("%s://%s:%s", scheme, host, mapped.Port())
}

// startMosquitto spins up an anonymous Mosquitto broker.
func startMosquitto(t *testing.T) string {
	t.Helper()
	requireDocker(t)
	conf := filepath.Join(t.TempDir(), "mosquitto.conf")
	require.NoError(t, os.WriteFile(conf, []byte("listener 1883\nallow_anonymous true\npersistence false\n"), 0644))
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      conf,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0644,
		}},
	}
	cont, err := tc.GenericContainer(context.Background(), tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	return endpoint(t, cont, "1883", "tcp")
}

// startNATS spins up a NATS server with JetStream enabled.
func startNATS(t *testing.T) string {
	t.Helper()
	requireDocker(t)
	req := tc.ContainerRequest{
		Image:        "nats:2.10",
		Cmd:          []string{"-js"},
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForLog("Server is ready"),
	}
	cont, err := tc.GenericContainer(context.Background(), tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	return endpoint(t, cont, "4222", "nats")
}

func simConfig(t *testing.T) simulator.Config {
	t.Helper()
	sc := simulator.Config{
		SiteNo:      "E2E",
		Connectors:  2,
		Demand:      []float64{100, 50, 50, 50},
		DemandEvery: 10,
		Interval:    50 * time.Millisecond,
		Seed:        7,
	}
	sc.SetDefaults()
	require.NoError(t, sc.Validate())
	return sc
}

// startService seeds site E2E with two charging connectors and runs the
// service until the test ends.
func startService(t *testing.T, cfg *config.Config) {
	t.Helper()
	cfg.Store.DSN = filepath.Join(t.TempDir(), "site.db")
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	svc, err := app.New(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, svc.Store.PutSite(ctx, model.Site{SiteNo: "E2E", TotalPowerLimit: 200, Demand: 100, Active: true}))
	require.NoError(t, svc.Store.PutConnector(ctx, model.ConnectorState{SiteNo: "E2E", ChargerSN: "E2E-C1", CurrentPower: 60, RatedPower: 120, Status: model.StatusCharging}))
	require.NoError(t, svc.Store.PutConnector(ctx, model.ConnectorState{SiteNo: "E2E", ChargerSN: "E2E-C2", CurrentPower: 30, RatedPower: 60, Status: model.StatusCharging}))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("service did not stop")
		}
		assert.NoError(t, svc.Close())
	})
}

func TestE2E_MQTTDemandDropCapsSimulatedConnectors(t *testing.T) {
	broker := startMosquitto(t)
	cfg := &config.Config{}
	cfg.Bus.Kind = config.BusMQTT
	cfg.MQTT.Broker = broker
	cfg.MQTT.ClientID = "e2e"
	startService(t, cfg)

	sc := simConfig(t)
	sc.Broker = broker
	sc.Topics = cfg.Topics
	site := simulator.NewSite(sc)
	tr, err := simulator.DialMQTT(broker, "e2e-sim")
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = simulator.Run(ctx, sc, site, tr, logger.NopLogger{}) }()

	require.Eventually(t, func() bool {
		c1, ok1 := site.Limit("E2E-C1")
		c2, ok2 := site.Limit("E2E-C2")
		return ok1 && ok2 && c1 == 42 && c2 == 21
	}, 20*time.Second, 10*time.Millisecond)
}

func TestE2E_NATSDemandDropPublishesProfiles(t *testing.T) {
	url := startNATS(t)
	cfg := &config.Config{}
	cfg.Bus.Kind = config.BusNATS
	cfg.NATS.URL = url
	cfg.NATS.CreateStream = true
	startService(t, cfg)

	conn, err := nats.Connect(url)
	require.NoError(t, err)
	defer conn.Close()
	js, err := conn.JetStream()
	require.NoError(t, err)

	profiles := make(chan bus.ProfileMessage, 16)
	sub, err := conn.Subscribe(cfg.Topics.PowerAllocation, func(m *nats.Msg) {
		var pm bus.ProfileMessage
		if json.Unmarshal(m.Data, &pm) == nil {
			profiles <- pm
		}
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	sc := simConfig(t)
	sc.Topics = cfg.Topics
	site := simulator.NewSite(sc)
	got := map[string]float64{}
	deadline := time.After(20 * time.Second)
	ticker := time.NewTicker(sc.Interval)
	defer ticker.Stop()
	for len(got) < 2 {
		select {
		case <-ticker.C:
			msgs, err := site.Step(time.Second)
			require.NoError(t, err)
			for _, m := range msgs {
				_, err := js.Publish(m.Topic, m.Payload)
				require.NoError(t, err)
			}
		case pm := <-profiles:
			assert.Equal(t, bus.ProfileVersion, pm.Version)
			got[pm.Profile.ChargerSN] = pm.Profile.Power
		case <-deadline:
			t.Fatalf("profiles not received, got %v", got)
		}
	}
	assert.Equal(t, map[string]float64{"E2E-C1": 42, "E2E-C2": 21}, got)
}
