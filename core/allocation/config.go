package allocation

import "fmt"

const (
	// DefaultMaxReduction is the largest fraction of a connector's draw a
	// single run may remove.
	DefaultMaxReduction = 0.3
	// DefaultMinImpact is the smallest fraction of a connector's draw worth
	// adjusting.
	DefaultMinImpact = 0.1
)

// Config holds the allocation policy parameters.
type Config struct {
	MaxReduction float64 `json:"max_reduction"`
	MinImpact    float64 `json:"min_impact"`
}

// SetDefaults fills unset parameters.
func (c *Config) SetDefaults() {
	if c.MaxReduction == 0 {
		c.MaxReduction = DefaultMaxReduction
	}
	if c.MinImpact == 0 {
		c.MinImpact = DefaultMinImpact
	}
}

// Validate checks the parameters are usable fractions.
func (c Config) Validate() error {
	if c.MaxReduction <= 0 || c.MaxReduction > 1 {
		return fmt.Errorf("max_reduction must be in (0,1], got %v", c.MaxReduction)
	}
	if c.MinImpact < 0 || c.MinImpact >= 1 {
		return fmt.Errorf("min_impact must be in [0,1), got %v", c.MinImpact)
	}
	return nil
}
