package ingest

import (
	"fmt"
	"time"
)

// Config defines the consumer loop settings.
type Config struct {
	BatchSize             int `json:"batch_size"`
	HandlerTimeoutSeconds int `json:"handler_timeout_seconds"`
	ErrorBackoffMS        int `json:"error_backoff_ms"`
	NotifyTimeoutSeconds  int `json:"notify_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.HandlerTimeoutSeconds == 0 {
		c.HandlerTimeoutSeconds = 10
	}
	if c.ErrorBackoffMS == 0 {
		c.ErrorBackoffMS = 1000
	}
	if c.NotifyTimeoutSeconds == 0 {
		c.NotifyTimeoutSeconds = 30
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("ingest: batch_size must be positive")
	}
	if c.HandlerTimeoutSeconds <= 0 {
		return fmt.Errorf("ingest: handler_timeout_seconds must be positive")
	}
	if c.ErrorBackoffMS < 0 {
		return fmt.Errorf("ingest: error_backoff_ms must not be negative")
	}
	if c.NotifyTimeoutSeconds <= 0 {
		return fmt.Errorf("ingest: notify_timeout_seconds must be positive")
	}
	return nil
}

func (c Config) handlerTimeout() time.Duration {
	return time.Duration(c.HandlerTimeoutSeconds) * time.Second
}

func (c Config) backoff() time.Duration {
	return time.Duration(c.ErrorBackoffMS) * time.Millisecond
}

// NotifyTimeout bounds one maintenance notification.
func (c Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}
