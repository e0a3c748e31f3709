package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sitepower/core/model"
)

func seeded() *MemoryStore {
	s := NewMemoryStore()
	s.PutSite(model.Site{SiteNo: "S1", TotalPowerLimit: 200, Demand: 100, Active: true})
	s.PutSite(model.Site{SiteNo: "S2", TotalPowerLimit: 50, Demand: 40})
	s.PutConnectors("S1", []model.ConnectorState{
		{ChargerSN: "C1", CurrentPower: 60, RatedPower: 120, Status: model.StatusCharging},
		{ChargerSN: "C2", CurrentPower: 30, RatedPower: 60, Status: model.StatusCharging},
	})
	return s
}

func TestMemoryStore_Sites(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	site, err := s.GetSite(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 90.0, site.CurrentPower)

	_, err = s.GetSite(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	active, err := s.GetActiveSites(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "S1", active[0].SiteNo)

	cs, err := s.GetConnectorStates(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "S1", cs[0].SiteNo)
}

func TestMemoryStore_AlertLifecycle(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	now := time.Now().UTC()
	a := model.Alert{ID: "a1", SiteNo: "S1", Subject: "S1", Type: model.AlertPowerExceed, Status: model.AlertActive, CreatedAt: now}
	require.NoError(t, s.SaveAlert(ctx, a))

	dup := a
	dup.ID = "a2"
	assert.ErrorIs(t, s.SaveAlert(ctx, dup), ErrConflict)

	act, err := s.ActiveAlerts(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, act, 1)

	require.NoError(t, s.ResolveAlert(ctx, "a1", now))
	act, _ = s.ActiveAlerts(ctx, "S1")
	assert.Empty(t, act)
	assert.ErrorIs(t, s.ResolveAlert(ctx, "missing", now), ErrNotFound)

	// a new ACTIVE alert is allowed once the previous one is resolved
	require.NoError(t, s.SaveAlert(ctx, dup))
}

func TestMemoryStore_UpdateConnectorStatus(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	require.NoError(t, s.UpdateConnectorStatus(ctx, "S1", "C2", model.StatusError))
	cs, _ := s.GetConnectorStates(ctx, "S1")
	assert.Equal(t, model.StatusError, cs[1].Status)
	assert.ErrorIs(t, s.UpdateConnectorStatus(ctx, "S1", "C9", model.StatusIdle), ErrNotFound)
}

func TestMemoryStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SavePredictions(ctx, model.PredictionRecord{SessionID: "old", CreatedAt: now.Add(-8 * 24 * time.Hour)}))
	require.NoError(t, s.SavePredictions(ctx, model.PredictionRecord{SessionID: "new", CreatedAt: now.Add(-time.Hour)}))
	old := now.Add(-100 * 24 * time.Hour)
	require.NoError(t, s.SaveAlert(ctx, model.Alert{ID: "r", SiteNo: "S1", Subject: "S1", Status: model.AlertResolved, ResolvedAt: &old}))
	require.NoError(t, s.SaveAlert(ctx, model.Alert{ID: "a", SiteNo: "S1", Subject: "S1", Status: model.AlertActive, CreatedAt: old}))

	res, err := s.Cleanup(ctx, Retention{Predictions: 7 * 24 * time.Hour, ResolvedAlerts: 90 * 24 * time.Hour}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Predictions)
	assert.Equal(t, int64(1), res.ResolvedAlerts)
	require.Len(t, s.Predictions(), 1)
	assert.Equal(t, "new", s.Predictions()[0].SessionID)
	assert.Len(t, s.Alerts(), 1)
}

func TestMemoryStore_VehicleModel(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SaveVehicleModel(context.Background(), model.VehicleModel{SessionID: "x", Model: "default_model"}))
	vm, ok := s.VehicleModel("x")
	require.True(t, ok)
	assert.Equal(t, "default_model", vm.Model)
}
