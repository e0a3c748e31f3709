package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sitepower/core/ingest"
	"github.com/kilianp07/sitepower/core/model"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := Config{Connectors: 2, Seed: 1, Demand: []float64{200, 120}, DemandEvery: 1}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func decodeAll(t *testing.T, msgs []Message) []model.Payload {
	t.Helper()
	dec, err := ingest.NewDecoder()
	require.NoError(t, err)
	out := make([]model.Payload, 0, len(msgs))
	for _, m := range msgs {
		p, _, err := dec.Decode(m.Payload)
		require.NoError(t, err, string(m.Payload))
		out = append(out, p)
	}
	return out
}

func TestSite_PlugInAnnouncesVehicle(t *testing.T) {
	cfg := testConfig(t)
	s := NewSite(cfg)
	assert.Equal(t, []string{"SIM-1-C1", "SIM-1-C2"}, s.Chargers())

	msgs, err := s.Step(time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	payloads := decodeAll(t, msgs)

	assert.Equal(t, cfg.Topics.PlugStatus, msgs[0].Topic)
	plug := payloads[0].(model.PlugStatus)
	assert.Equal(t, "SIM-1-C1", plug.ChargerSN)
	assert.Equal(t, string(model.StatusCharging), plug.Status)
	assert.True(t, plug.Plugged)

	assert.Equal(t, cfg.Topics.VehicleRecognition, msgs[1].Topic)
	veh := payloads[1].(model.VehicleData)
	assert.NotEmpty(t, veh.SessionID)
	assert.Equal(t, 60.0, veh.Capacity)
	assert.Equal(t, "SIM-1-C1", veh.ChargerSN)

	limit, ok := s.Limit("SIM-1-C1")
	assert.True(t, ok)
	assert.Equal(t, cfg.MaxPowerKW, limit)
}

func TestSite_TelemetryFollowsProfileAndDemand(t *testing.T) {
	s := NewSite(testConfig(t))
	first, err := s.Step(time.Minute)
	require.NoError(t, err)
	session := decodeAll(t, first)[1].(model.VehicleData).SessionID

	assert.True(t, s.ApplyProfile(model.PowerProfile{ChargerSN: "SIM-1-C1", Power: 10}))
	assert.False(t, s.ApplyProfile(model.PowerProfile{ChargerSN: "unknown", Power: 10}))

	msgs, err := s.Step(6 * time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	payloads := decodeAll(t, msgs)

	c1 := payloads[0].(model.PowerData)
	assert.Equal(t, session, c1.SessionID)
	assert.Equal(t, 10.0, c1.Power)
	require.NotNil(t, c1.Demand)
	assert.Equal(t, 120.0, *c1.Demand)

	c2 := payloads[1].(model.PowerData)
	assert.Equal(t, "SIM-1-C2", c2.ChargerSN)
	assert.Equal(t, 50.0, c2.Power)
}

func TestSite_FullBatteryIsUnplugged(t *testing.T) {
	s := NewSite(testConfig(t))
	_, err := s.Step(time.Minute)
	require.NoError(t, err)

	msgs, err := s.Step(10 * time.Hour)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	payloads := decodeAll(t, msgs)
	assert.Equal(t, 100.0, payloads[0].(model.PowerData).SOC)
	idle := payloads[1].(model.PlugStatus)
	assert.Equal(t, string(model.StatusIdle), idle.Status)
	assert.False(t, idle.Plugged)

	_, ok := s.Limit("SIM-1-C1")
	assert.False(t, ok)

	msgs, err = s.Step(time.Minute)
	require.NoError(t, err)
	assert.Len(t, msgs, 4, "empty connectors get a new vehicle")
}

func TestSite_FaultReportsError(t *testing.T) {
	cfg := testConfig(t)
	cfg.FaultRate = 1
	s := NewSite(cfg)
	_, err := s.Step(time.Minute)
	require.NoError(t, err)

	msgs, err := s.Step(time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, p := range decodeAll(t, msgs) {
		st, err := model.ParseConnectorStatus(p.(model.PlugStatus).Status)
		require.NoError(t, err)
		assert.Equal(t, model.StatusError, st)
	}
}

func TestConfig_Validate(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Minute, cfg.StepDuration())

	bad := cfg
	bad.FaultRate = 2
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Demand = []float64{-1}
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Topics.PlugStatus = bad.Topics.PowerAllocation
	assert.Error(t, bad.Validate())
}
