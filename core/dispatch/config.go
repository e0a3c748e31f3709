package dispatch

import (
	"fmt"
	"time"
)

// Config defines reallocation settings.
type Config struct {
	// TimeoutSeconds bounds one background reallocation run, store reads and
	// profile publishing included.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("dispatch: timeout_seconds must not be negative")
	}
	return nil
}

// Timeout returns the run timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
