package config

import (
	"fmt"
	"strings"
)

// LoggingConfig defines the service log output. Empty values fall back to the
// LOG_LEVEL and APP_ENV environment variables.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `json:"level"`
	// Console switches to the human readable writer.
	Console bool `json:"console"`
}

// Validate checks the level name.
func (c LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown level %s", c.Level)
	}
}
