// Package bus defines the contracts between the service and the durable
// telemetry bus. Adapters live in infra/mqtt and infra/nats.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/sitepower/core/model"
)

var (
	// ErrClosed is returned by Fetch once the source has been closed.
	ErrClosed = errors.New("bus: source closed")
	// ErrNotConnected is returned when the broker connection is down.
	ErrNotConnected = errors.New("bus: not connected")
)

// ProfileVersion is stamped on every outbound profile message.
const ProfileVersion = "1.0"

// Message is one inbound record. Messages of the same partition are handed
// out in arrival order. Exactly one of Ack or Nak must be called.
type Message interface {
	// Partition identifies the ordering domain of the message (a topic or a
	// topic/partition pair).
	Partition() string
	Payload() []byte
	// Ack marks the message as processed.
	Ack(ctx context.Context) error
	// Nak asks for redelivery.
	Nak(ctx context.Context) error
}

// Source yields batches of inbound messages.
type Source interface {
	// Fetch blocks until at least one message is available, ctx is done, or
	// the backend wait expires. An empty batch with a nil error is valid.
	Fetch(ctx context.Context, max int) ([]Message, error)
	Close() error
}

// Publisher sends power profiles to the outbound topic.
type Publisher interface {
	PublishProfile(ctx context.Context, p model.PowerProfile) error
}

// ProfileMessage is the outbound wire format. One message is sent per
// connector of the complete profile, unchanged connectors included.
type ProfileMessage struct {
	Timestamp time.Time          `json:"timestamp"`
	Profile   model.PowerProfile `json:"profile"`
	Version   string             `json:"version"`
}

// EncodeProfile builds the wire message for p stamped with now.
func EncodeProfile(p model.PowerProfile, now time.Time) ([]byte, error) {
	return json.Marshal(ProfileMessage{Timestamp: now.UTC(), Profile: p, Version: ProfileVersion})
}

// Topics names the bus channels. Every inbound topic is its own partition.
type Topics struct {
	VehicleRecognition string `json:"vehicle_recognition"`
	PowerTelemetry     string `json:"power_telemetry"`
	PlugStatus         string `json:"plug_status"`
	PowerAllocation    string `json:"power_allocation"`
}

// SetDefaults applies the default topic names.
func (t *Topics) SetDefaults() {
	if t.VehicleRecognition == "" {
		t.VehicleRecognition = "vehicle_recognition"
	}
	if t.PowerTelemetry == "" {
		t.PowerTelemetry = "power_prediction"
	}
	if t.PlugStatus == "" {
		t.PlugStatus = "plug_status"
	}
	if t.PowerAllocation == "" {
		t.PowerAllocation = "power_allocation"
	}
}

// Validate rejects an outbound topic that is also consumed.
func (t Topics) Validate() error {
	for _, in := range t.Inbound() {
		if in == "" {
			return errors.New("bus: inbound topic must not be empty")
		}
		if in == t.PowerAllocation {
			return fmt.Errorf("bus: topic %q is both inbound and outbound", in)
		}
	}
	if t.PowerAllocation == "" {
		return errors.New("bus: power_allocation topic must not be empty")
	}
	return nil
}

// Inbound returns the consumed topics.
func (t Topics) Inbound() []string {
	return []string{t.VehicleRecognition, t.PowerTelemetry, t.PlugStatus}
}
