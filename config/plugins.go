package config

import (
	"fmt"

	"github.com/kilianp07/sitepower/core/factory"
)

// ComponentsConfig lists the pluggable prediction components. Each component
// is defined solely by its type and an arbitrary configuration map decoded by
// the plugin itself.
type ComponentsConfig struct {
	Predictor  factory.ModuleConfig `json:"predictor"`
	Recognizer factory.ModuleConfig `json:"recognizer"`
}

// SetDefaults selects the built-in curve model and recognizer.
func (c *ComponentsConfig) SetDefaults() {
	if c.Predictor.Type == "" {
		c.Predictor.Type = "curve"
	}
	if c.Recognizer.Type == "" {
		c.Recognizer.Type = "default"
	}
}

// Validate requires both component types.
func (c ComponentsConfig) Validate() error {
	if c.Predictor.Type == "" || c.Recognizer.Type == "" {
		return fmt.Errorf("predictor and recognizer types are required")
	}
	return nil
}
