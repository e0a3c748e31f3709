package events

import (
	"time"

	"github.com/kilianp07/sitepower/core/model"
)

// DemandChangeEvent is published when the tracker decides to reallocate.
type DemandChangeEvent struct {
	SiteNo   string
	Previous float64
	Demand   float64
	Time     time.Time
}

// ReallocationEvent is published after every reallocation run.
type ReallocationEvent struct {
	TaskID               string
	SiteNo               string
	Adjusted             int
	Shortfall            float64
	CapacityInsufficient bool
	DryRun               bool
	Err                  error
}

// Alert transitions.
const (
	AlertRaised   = "raised"
	AlertResolved = "resolved"
)

// AlertEvent is published when an alert changes state.
type AlertEvent struct {
	Alert      model.Alert
	Transition string
}

// Message outcomes.
const (
	OutcomeAcked       = "acked"
	OutcomeRedelivered = "redelivered"
	OutcomeInvalid     = "invalid"
	OutcomeUnknownType = "unknown_type"
	OutcomeFailed      = "failed"
)

// MessageEvent is published once per inbound message.
type MessageEvent struct {
	Partition string
	Type      model.MessageType
	Outcome   string
	Latency   time.Duration
	Err       error
}
