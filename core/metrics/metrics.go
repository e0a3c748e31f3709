package metrics

import (
	"time"

	"github.com/kilianp07/sitepower/core/model"
)

// ReallocationEvent summarises one reallocation run.
type ReallocationEvent struct {
	TaskID               string
	SiteNo               string
	Demand               float64
	TotalBefore          float64
	TotalAfter           float64
	Shortfall            float64
	Connectors           int
	Adjusted             int
	Published            int
	CapacityInsufficient bool
	DryRun               bool
	Duration             time.Duration
	Time                 time.Time
}

// MetricsSink records reallocation runs.
type MetricsSink interface {
	RecordReallocation(ev ReallocationEvent) error
}

// AlertEvent captures an alert transition.
type AlertEvent struct {
	SiteNo     string
	Subject    string
	Type       model.AlertType
	Severity   model.Severity
	Transition string
	Time       time.Time
}

// AlertRecorder records alert transitions.
type AlertRecorder interface {
	RecordAlert(ev AlertEvent) error
}

// AuditEvent summarises one alert monitor pass.
type AuditEvent struct {
	Sites    int
	Failed   int
	Raised   int
	Resolved int
	Duration time.Duration
	Time     time.Time
}

// AuditRecorder records monitor passes.
type AuditRecorder interface {
	RecordAudit(ev AuditEvent) error
}

// MessageEvent describes the handling of one inbound message.
type MessageEvent struct {
	Partition string
	Type      model.MessageType
	Outcome   string
	Latency   time.Duration
	Time      time.Time
}

// MessageRecorder records inbound message outcomes.
type MessageRecorder interface {
	RecordMessage(ev MessageEvent) error
}

// DemandChangeEvent records a demand change that triggered a reallocation.
type DemandChangeEvent struct {
	SiteNo   string
	Previous float64
	Demand   float64
	Time     time.Time
}

// DemandRecorder records demand changes.
type DemandRecorder interface {
	RecordDemandChange(ev DemandChangeEvent) error
}

// PredictionEvent carries the forecast computed for one telemetry sample.
type PredictionEvent struct {
	SessionID string
	SiteNo    string
	ChargerSN string
	SOC       float64
	Power     float64
	Results   []model.PredictionResult
	Time      time.Time
}

// PredictionRecorder records power predictions.
type PredictionRecorder interface {
	RecordPrediction(ev PredictionEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordReallocation(ReallocationEvent) error { return nil }
func (NopSink) RecordAlert(AlertEvent) error               { return nil }
func (NopSink) RecordAudit(AuditEvent) error               { return nil }
func (NopSink) RecordMessage(MessageEvent) error           { return nil }
func (NopSink) RecordDemandChange(DemandChangeEvent) error { return nil }
func (NopSink) RecordPrediction(PredictionEvent) error     { return nil }
