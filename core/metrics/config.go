package metrics

import (
	"fmt"

	"github.com/kilianp07/sitepower/core/factory"
)

// Config lists the sinks every recorded metric is fanned out to. An empty
// list disables recording.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
}

// Validate rejects sinks without a type. Unknown types are reported when
// the sinks are built, once every adapter has registered.
func (c Config) Validate() error {
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("metrics: sink %d has no type", i)
		}
	}
	return nil
}
