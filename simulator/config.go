package simulator

import (
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/sitepower/core/bus"
)

// Config holds parameters for the simulator.
type Config struct {
	Broker      string  `json:"broker"`
	SiteNo      string  `json:"site_no"`
	Connectors  int     `json:"connectors"`
	CapacityKWh float64 `json:"capacity_kwh"`
	MaxPowerKW  float64 `json:"max_power_kw"`
	// Demand is the site demand schedule in kW. The simulator moves to the
	// next entry every DemandEvery steps and wraps around.
	Demand      []float64     `json:"demand"`
	DemandEvery int           `json:"demand_every"`
	Interval    time.Duration `json:"interval"`
	// TimeScale is the number of simulated seconds per real second.
	TimeScale float64    `json:"time_scale"`
	FaultRate float64    `json:"fault_rate"`
	Seed      int64      `json:"seed"`
	Topics    bus.Topics `json:"topics"`
}

// SetDefaults applies the defaults used by the simulate command.
func (c *Config) SetDefaults() {
	if c.Broker == "" {
		c.Broker = "tcp://localhost:1883"
	}
	if c.SiteNo == "" {
		c.SiteNo = "SIM-1"
	}
	if c.Connectors == 0 {
		c.Connectors = 4
	}
	if c.CapacityKWh == 0 {
		c.CapacityKWh = 60
	}
	if c.MaxPowerKW == 0 {
		c.MaxPowerKW = 50
	}
	if len(c.Demand) == 0 {
		c.Demand = []float64{200, 120}
	}
	if c.DemandEvery == 0 {
		c.DemandEvery = 10
	}
	if c.Interval == 0 {
		c.Interval = time.Second
	}
	if c.TimeScale == 0 {
		c.TimeScale = 60
	}
	c.Topics.SetDefaults()
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.SiteNo == "" {
		return errors.New("simulator: site_no is required")
	}
	if c.Connectors <= 0 {
		return fmt.Errorf("simulator: connectors must be positive, got %d", c.Connectors)
	}
	if c.CapacityKWh <= 0 || c.MaxPowerKW <= 0 {
		return errors.New("simulator: capacity and max power must be positive")
	}
	for _, d := range c.Demand {
		if d < 0 {
			return fmt.Errorf("simulator: negative demand %v", d)
		}
	}
	if c.DemandEvery <= 0 || c.Interval <= 0 || c.TimeScale <= 0 {
		return errors.New("simulator: demand_every, interval and time_scale must be positive")
	}
	if c.FaultRate < 0 || c.FaultRate > 1 {
		return fmt.Errorf("simulator: fault_rate %v outside [0,1]", c.FaultRate)
	}
	return c.Topics.Validate()
}

// StepDuration returns the simulated time covered by one tick.
func (c Config) StepDuration() time.Duration {
	return time.Duration(float64(c.Interval) * c.TimeScale)
}
