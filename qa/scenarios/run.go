package scenarios

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/sitepower/core/allocation"
	"github.com/kilianp07/sitepower/core/model"
)

const tolerance = 1e-6

// Run allocates the scenario demand over its connectors.
func Run(sc *Scenario) (allocation.Result, error) {
	a := allocation.New(allocation.Config{MaxReduction: sc.MaxReduction, MinImpact: sc.MinImpact}).
		WithClock(func() time.Time { return time.Unix(0, 0) })
	cs := make([]model.ConnectorState, len(sc.Connectors))
	for i, c := range sc.Connectors {
		cs[i] = c.ToModel(sc.Name)
	}
	return a.Allocate(sc.Demand, cs)
}

// Verify compares an allocation outcome with the scenario expectations and
// joins every mismatch into the returned error.
func Verify(sc *Scenario, res allocation.Result, err error) error {
	var errs []error
	if err != nil && !errors.Is(err, allocation.ErrCapacityInsufficient) {
		return err
	}
	if got := errors.Is(err, allocation.ErrCapacityInsufficient); got != sc.Expected.CapacityInsufficient {
		errs = append(errs, fmt.Errorf("capacity_insufficient: got %v want %v", got, sc.Expected.CapacityInsufficient))
	}
	if res.Adjusted != sc.Expected.Adjusted {
		errs = append(errs, fmt.Errorf("adjusted: got %d want %d", res.Adjusted, sc.Expected.Adjusted))
	}
	if math.Abs(res.Shortfall-sc.Expected.Shortfall) > tolerance {
		errs = append(errs, fmt.Errorf("shortfall: got %v want %v", res.Shortfall, sc.Expected.Shortfall))
	}
	if len(res.Profiles) != len(sc.Connectors) {
		errs = append(errs, fmt.Errorf("profile size: got %d want %d", len(res.Profiles), len(sc.Connectors)))
	}
	for _, p := range res.Profiles {
		want, ok := sc.Expected.Profile[p.ChargerSN]
		if !ok {
			continue
		}
		if math.Abs(p.Power-want) > tolerance {
			errs = append(errs, fmt.Errorf("%s: got %v kW want %v kW", p.ChargerSN, p.Power, want))
		}
	}
	return errors.Join(errs...)
}
