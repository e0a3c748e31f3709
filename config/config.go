package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/sitepower/core/alerting"
	"github.com/kilianp07/sitepower/core/allocation"
	"github.com/kilianp07/sitepower/core/bus"
	"github.com/kilianp07/sitepower/core/dispatch"
	"github.com/kilianp07/sitepower/core/dispatch/logging"
	"github.com/kilianp07/sitepower/core/ingest"
	"github.com/kilianp07/sitepower/core/metrics"
	"github.com/kilianp07/sitepower/core/retention"
	"github.com/kilianp07/sitepower/infra/httpapi"
	"github.com/kilianp07/sitepower/infra/maintenance"
	"github.com/kilianp07/sitepower/infra/monitoring"
	"github.com/kilianp07/sitepower/infra/mqtt"
	natsbus "github.com/kilianp07/sitepower/infra/nats"
	"github.com/kilianp07/sitepower/infra/sqlstore"
)

type Config struct {
	Bus         BusConfig          `json:"bus"`
	MQTT        mqtt.Config        `json:"mqtt"`
	NATS        natsbus.Config     `json:"nats"`
	Topics      bus.Topics         `json:"topics"`
	Store       sqlstore.Config    `json:"store"`
	Allocation  allocation.Config  `json:"allocation"`
	Dispatch    dispatch.Config    `json:"dispatch"`
	Ingest      ingest.Config      `json:"ingest"`
	Monitor     alerting.Config    `json:"monitor"`
	Maintenance maintenance.Config `json:"maintenance"`
	Retention   retention.Config   `json:"retention"`
	TaskLog     logging.Config     `json:"task_log"`
	Components  ComponentsConfig   `json:"components"`
	Metrics     metrics.Config     `json:"metrics"`
	HTTP        httpapi.Config     `json:"http"`
	Sentry      monitoring.Config  `json:"sentry"`
	Logging     LoggingConfig      `json:"logging"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Bus.SetDefaults()
	c.MQTT.SetDefaults()
	c.NATS.SetDefaults()
	c.Topics.SetDefaults()
	c.Store.SetDefaults()
	c.Allocation.SetDefaults()
	c.Dispatch.SetDefaults()
	c.Ingest.SetDefaults()
	c.Monitor.SetDefaults()
	c.Maintenance.SetDefaults()
	c.Retention.SetDefaults()
	c.TaskLog.SetDefaults()
	c.Components.SetDefaults()
	c.HTTP.SetDefaults()
}

type validator interface {
	Validate() error
}

// Validate checks every section and names the first invalid one. Only the
// selected bus backend is validated.
func (c Config) Validate() error {
	sections := []struct {
		name string
		v    validator
	}{
		{"bus", c.Bus},
		{"topics", c.Topics},
		{"store", c.Store},
		{"allocation", c.Allocation},
		{"dispatch", c.Dispatch},
		{"ingest", c.Ingest},
		{"monitor", c.Monitor},
		{"maintenance", c.Maintenance},
		{"retention", c.Retention},
		{"task_log", c.TaskLog},
		{"components", c.Components},
		{"metrics", c.Metrics},
		{"http", c.HTTP},
		{"sentry", c.Sentry},
		{"logging", c.Logging},
	}
	switch c.Bus.Kind {
	case BusMQTT:
		sections = append(sections, struct {
			name string
			v    validator
		}{"mqtt", c.MQTT})
	case BusNATS:
		sections = append(sections, struct {
			name string
			v    validator
		}{"nats", c.NATS})
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("config %s: %w", s.name, err)
		}
	}
	return nil
}
