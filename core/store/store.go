// Package store defines the persistence contract the dispatcher and the
// monitor rely on. The SQL implementation lives in infra/sqlstore.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/sitepower/core/model"
)

var (
	// ErrNotFound is returned when the requested site or alert does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrUnavailable wraps transient backend failures. Callers may retry.
	ErrUnavailable = errors.New("store: unavailable")
	// ErrConflict is returned when an ACTIVE alert already exists for the key.
	ErrConflict = errors.New("store: conflict")
)

// SiteReader exposes read access to sites and their connectors.
type SiteReader interface {
	// GetSite returns the site with CurrentPower derived from its connectors.
	GetSite(ctx context.Context, siteNo string) (model.Site, error)
	GetConnectorStates(ctx context.Context, siteNo string) ([]model.ConnectorState, error)
	GetActiveSites(ctx context.Context) ([]model.Site, error)
}

// AlertStore maintains the alert lifecycle.
type AlertStore interface {
	// ActiveAlerts returns the ACTIVE alerts raised for siteNo.
	ActiveAlerts(ctx context.Context, siteNo string) ([]model.Alert, error)
	SaveAlert(ctx context.Context, a model.Alert) error
	// ResolveAlert marks the alert RESOLVED at the given time.
	ResolveAlert(ctx context.Context, id string, at time.Time) error
}

// TelemetryWriter persists the outcome of inbound telemetry.
type TelemetryWriter interface {
	SavePredictions(ctx context.Context, rec model.PredictionRecord) error
	SaveVehicleModel(ctx context.Context, vm model.VehicleModel) error
	UpdateConnectorStatus(ctx context.Context, siteNo, chargerSN string, st model.ConnectorStatus) error
}

// Retention gives the age after which records are purged. A zero value keeps
// the records forever.
type Retention struct {
	Predictions    time.Duration
	ResolvedAlerts time.Duration
}

// CleanupResult counts the rows removed by Cleanup.
type CleanupResult struct {
	Predictions    int64
	ResolvedAlerts int64
}

// Store is the full contract.
type Store interface {
	SiteReader
	AlertStore
	TelemetryWriter
	Cleanup(ctx context.Context, r Retention, now time.Time) (CleanupResult, error)
	Ping(ctx context.Context) error
	Close() error
}
