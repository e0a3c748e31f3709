// Package scenarios replays allocation scenarios described in YAML files
// against the greedy allocator.
package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/sitepower/core/model"
)

type ConnectorDef struct {
	ChargerSN  string  `yaml:"charger_sn"`
	Power      float64 `yaml:"power"`
	RatedPower float64 `yaml:"rated_power"`
}

func (c ConnectorDef) ToModel(siteNo string) model.ConnectorState {
	return model.ConnectorState{
		SiteNo:       siteNo,
		ChargerSN:    c.ChargerSN,
		CurrentPower: c.Power,
		RatedPower:   c.RatedPower,
		Status:       model.StatusCharging,
	}
}

type Expected struct {
	CapacityInsufficient bool               `yaml:"capacity_insufficient"`
	Adjusted             int                `yaml:"adjusted"`
	Shortfall            float64            `yaml:"shortfall"`
	Profile              map[string]float64 `yaml:"profile"`
}

type Scenario struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description,omitempty"`
	MaxReduction float64        `yaml:"max_reduction,omitempty"`
	MinImpact    float64        `yaml:"min_impact,omitempty"`
	Demand       float64        `yaml:"demand"`
	Connectors   []ConnectorDef `yaml:"connectors"`
	Expected     Expected       `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario name is required", path)
	}
	return &sc, nil
}
