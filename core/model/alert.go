package model

import "time"

// AlertType names one audit rule.
type AlertType string

const (
	AlertPowerExceed        AlertType = "POWER_EXCEED"
	AlertDemandExceed       AlertType = "DEMAND_EXCEED"
	AlertChargerError       AlertType = "CHARGER_ERROR"
	AlertChargerPowerExceed AlertType = "CHARGER_POWER_EXCEED"
)

// Severity of an alert.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Severity returns the default severity for the alert type.
func (t AlertType) Severity() Severity {
	switch t {
	case AlertPowerExceed, AlertChargerError:
		return SeverityCritical
	default:
		return SeverityWarning
	}
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertActive   AlertStatus = "ACTIVE"
	AlertResolved AlertStatus = "RESOLVED"
)

// AlertKey identifies an ongoing condition. Subject is the site number for
// site-level rules and the charger serial for connector-level rules. At most
// one ACTIVE alert exists per key.
type AlertKey struct {
	Subject string    `json:"subject"`
	Type    AlertType `json:"alert_type"`
}

// Alert records a rule violation for a site or one of its connectors.
type Alert struct {
	ID         string      `json:"id"`
	SiteNo     string      `json:"site_no"`
	Subject    string      `json:"subject"`
	Type       AlertType   `json:"alert_type"`
	Message    string      `json:"message"`
	Severity   Severity    `json:"severity"`
	Status     AlertStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
}

// Key returns the lifecycle key of the alert.
func (a Alert) Key() AlertKey { return AlertKey{Subject: a.Subject, Type: a.Type} }
