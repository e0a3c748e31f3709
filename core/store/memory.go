package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/sitepower/core/model"
)

// MemoryStore is an in-process Store used by tests and the dry-run CLI.
type MemoryStore struct {
	mu          sync.RWMutex
	sites       map[string]model.Site
	connectors  map[string][]model.ConnectorState
	alerts      map[string]model.Alert
	predictions []model.PredictionRecord
	vehicles    map[string]model.VehicleModel
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sites:      map[string]model.Site{},
		connectors: map[string][]model.ConnectorState{},
		alerts:     map[string]model.Alert{},
		vehicles:   map[string]model.VehicleModel{},
	}
}

// PutSite inserts or replaces a site.
func (s *MemoryStore) PutSite(site model.Site) {
	s.mu.Lock()
	s.sites[site.SiteNo] = site
	s.mu.Unlock()
}

// PutConnectors replaces the connectors of a site.
func (s *MemoryStore) PutConnectors(siteNo string, cs []model.ConnectorState) {
	cp := make([]model.ConnectorState, len(cs))
	copy(cp, cs)
	for i := range cp {
		cp[i].SiteNo = siteNo
	}
	s.mu.Lock()
	s.connectors[siteNo] = cp
	s.mu.Unlock()
}

func (s *MemoryStore) GetSite(_ context.Context, siteNo string) (model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[siteNo]
	if !ok {
		return model.Site{}, fmt.Errorf("site %s: %w", siteNo, ErrNotFound)
	}
	site.CurrentPower = model.TotalPower(s.connectors[siteNo])
	return site, nil
}

func (s *MemoryStore) GetConnectorStates(_ context.Context, siteNo string) ([]model.ConnectorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sites[siteNo]; !ok {
		return nil, fmt.Errorf("site %s: %w", siteNo, ErrNotFound)
	}
	cs := s.connectors[siteNo]
	out := make([]model.ConnectorState, len(cs))
	copy(out, cs)
	return out, nil
}

func (s *MemoryStore) GetActiveSites(_ context.Context) ([]model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Site, 0, len(s.sites))
	for no, site := range s.sites {
		if !site.Active {
			continue
		}
		site.CurrentPower = model.TotalPower(s.connectors[no])
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteNo < out[j].SiteNo })
	return out, nil
}

func (s *MemoryStore) ActiveAlerts(_ context.Context, siteNo string) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Alert
	for _, a := range s.alerts {
		if a.SiteNo == siteNo && a.Status == model.AlertActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveAlert stores a. A second ACTIVE alert for the same key is rejected.
func (s *MemoryStore) SaveAlert(_ context.Context, a model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Status == model.AlertActive {
		for id, other := range s.alerts {
			if id != a.ID && other.Status == model.AlertActive && other.Key() == a.Key() {
				return fmt.Errorf("alert %s/%s already active: %w", a.Subject, a.Type, ErrConflict)
			}
		}
	}
	s.alerts[a.ID] = a
	return nil
}

func (s *MemoryStore) ResolveAlert(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	a.Status = model.AlertResolved
	a.ResolvedAt = &at
	s.alerts[id] = a
	return nil
}

// Alerts returns every alert, active or resolved, ordered by creation time.
func (s *MemoryStore) Alerts() []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) SavePredictions(_ context.Context, rec model.PredictionRecord) error {
	s.mu.Lock()
	s.predictions = append(s.predictions, rec)
	s.mu.Unlock()
	return nil
}

// Predictions returns the stored prediction records.
func (s *MemoryStore) Predictions() []model.PredictionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PredictionRecord, len(s.predictions))
	copy(out, s.predictions)
	return out
}

func (s *MemoryStore) SaveVehicleModel(_ context.Context, vm model.VehicleModel) error {
	s.mu.Lock()
	s.vehicles[vm.SessionID] = vm
	s.mu.Unlock()
	return nil
}

// VehicleModel returns the recognition stored for a session.
func (s *MemoryStore) VehicleModel(sessionID string) (model.VehicleModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vm, ok := s.vehicles[sessionID]
	return vm, ok
}

func (s *MemoryStore) UpdateConnectorStatus(_ context.Context, siteNo, chargerSN string, st model.ConnectorStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.connectors[siteNo]
	for i := range cs {
		if cs[i].ChargerSN == chargerSN {
			cs[i].Status = st
			cs[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("connector %s/%s: %w", siteNo, chargerSN, ErrNotFound)
}

func (s *MemoryStore) Cleanup(_ context.Context, r Retention, now time.Time) (CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res CleanupResult
	if r.Predictions > 0 {
		cutoff := now.Add(-r.Predictions)
		kept := s.predictions[:0]
		for _, p := range s.predictions {
			if p.CreatedAt.Before(cutoff) {
				res.Predictions++
				continue
			}
			kept = append(kept, p)
		}
		s.predictions = kept
	}
	if r.ResolvedAlerts > 0 {
		cutoff := now.Add(-r.ResolvedAlerts)
		for id, a := range s.alerts {
			if a.Status == model.AlertResolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
				delete(s.alerts, id)
				res.ResolvedAlerts++
			}
		}
	}
	return res, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
