package config

import "fmt"

const (
	BusMQTT = "mqtt"
	BusNATS = "nats"
)

// BusConfig selects the message broker carrying the inbound topics and the
// published power profiles.
type BusConfig struct {
	Kind string `json:"kind"`
}

// SetDefaults selects MQTT.
func (c *BusConfig) SetDefaults() {
	if c.Kind == "" {
		c.Kind = BusMQTT
	}
}

// Validate checks the broker kind.
func (c BusConfig) Validate() error {
	switch c.Kind {
	case BusMQTT, BusNATS:
		return nil
	default:
		return fmt.Errorf("unknown bus kind %q", c.Kind)
	}
}
