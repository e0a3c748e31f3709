package model

import (
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Site is a physical charging location. TotalPowerLimit is the hard ceiling
// of the grid connection while Demand is the externally supplied target the
// aggregate draw must stay under. Both are expressed in kW.
type Site struct {
	SiteNo          string  `json:"site_no"`
	Name            string  `json:"name,omitempty"`
	TotalPowerLimit float64 `json:"total_power_limit"`
	Demand          float64 `json:"demand"`
	// CurrentPower is derived from the connector draws when the site is read.
	CurrentPower float64 `json:"current_power"`
	Active       bool    `json:"active"`
}

// Validate checks that the site carries the fields the dispatcher relies on.
func (s Site) Validate() error {
	if s.SiteNo == "" {
		return fmt.Errorf("site_no is required")
	}
	if s.TotalPowerLimit < 0 {
		return fmt.Errorf("site %s: total power limit must not be negative", s.SiteNo)
	}
	if s.Demand < 0 {
		return fmt.Errorf("site %s: demand must not be negative", s.SiteNo)
	}
	return nil
}

// ConnectorStatus is the operational state reported for a connector.
type ConnectorStatus string

const (
	StatusCharging ConnectorStatus = "CHARGING"
	StatusIdle     ConnectorStatus = "IDLE"
	StatusError    ConnectorStatus = "ERROR"
	StatusOffline  ConnectorStatus = "OFFLINE"
)

// ParseConnectorStatus maps a reported status string onto a known status.
// Matching is case-insensitive.
func ParseConnectorStatus(s string) (ConnectorStatus, error) {
	switch st := ConnectorStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusCharging, StatusIdle, StatusError, StatusOffline:
		return st, nil
	default:
		return "", fmt.Errorf("unknown connector status %q", s)
	}
}

// ConnectorState is a point-in-time snapshot of one controllable charging
// output. It is refreshed on every allocation or audit cycle.
type ConnectorState struct {
	ChargerSN    string          `json:"charger_sn"`
	SiteNo       string          `json:"site_no,omitempty"`
	CurrentPower float64         `json:"current_power"`
	RatedPower   float64         `json:"rated_power"`
	Status       ConnectorStatus `json:"status"`
	UpdatedAt    time.Time       `json:"updated_at,omitempty"`
}

// TotalPower returns the aggregate draw of the given connectors in kW.
func TotalPower(cs []ConnectorState) float64 {
	if len(cs) == 0 {
		return 0
	}
	p := make([]float64, len(cs))
	for i, c := range cs {
		p[i] = c.CurrentPower
	}
	return floats.Sum(p)
}

// PowerProfile is the set-point proposed for one connector by a reallocation
// run. Profiles are immutable once produced.
type PowerProfile struct {
	ChargerSN string    `json:"charger_sn"`
	Power     float64   `json:"power"`
	Timestamp time.Time `json:"timestamp"`
}
