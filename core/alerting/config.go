package alerting

import (
	"fmt"
	"time"
)

// Config defines the audit loop settings.
type Config struct {
	IntervalSeconds int `json:"interval_seconds"`
	// SiteTimeoutSeconds bounds the store calls made for one site.
	SiteTimeoutSeconds int `json:"site_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = 60
	}
	if c.SiteTimeoutSeconds == 0 {
		c.SiteTimeoutSeconds = 10
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("monitor: interval_seconds must be positive")
	}
	if c.SiteTimeoutSeconds <= 0 {
		return fmt.Errorf("monitor: site_timeout_seconds must be positive")
	}
	return nil
}

// Interval returns the pass interval as a duration.
func (c Config) Interval() time.Duration { return time.Duration(c.IntervalSeconds) * time.Second }

func (c Config) siteTimeout() time.Duration {
	return time.Duration(c.SiteTimeoutSeconds) * time.Second
}
