package allocation

import (
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/kilianp07/sitepower/core/model"
)

const tol = 1e-6

func connectorsFrom(ps []float64) []model.ConnectorState {
	cs := make([]model.ConnectorState, len(ps))
	for i, p := range ps {
		cs[i] = model.ConnectorState{ChargerSN: fmt.Sprintf("c%d", i), CurrentPower: p}
	}
	return cs
}

func TestAllocateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	alloc := New(Config{})
	powerGen := gen.SliceOf(gen.Float64Range(0, 350))
	demandGen := gen.Float64Range(0, 2000)

	properties.Property("profile length equals input length", prop.ForAll(
		func(ps []float64, demand float64) bool {
			res, _ := alloc.Allocate(demand, connectorsFrom(ps))
			return len(res.Profiles) == len(ps)
		},
		powerGen, demandGen,
	))

	properties.Property("connectors under demand are unchanged", prop.ForAll(
		func(ps []float64) bool {
			cs := connectorsFrom(ps)
			res, err := alloc.Allocate(model.TotalPower(cs)+1, cs)
			if err != nil {
				return false
			}
			for i, p := range res.Profiles {
				if p.Power != ps[i] {
					return false
				}
			}
			return true
		},
		powerGen,
	))

	properties.Property("no connector goes below its floor", prop.ForAll(
		func(ps []float64, demand float64) bool {
			res, _ := alloc.Allocate(demand, connectorsFrom(ps))
			for i, p := range res.Profiles {
				if p.Power < (1-DefaultMaxReduction)*ps[i]-tol {
					return false
				}
			}
			return true
		},
		powerGen, demandGen,
	))

	properties.Property("adjustments are zero or at least the impact threshold", prop.ForAll(
		func(ps []float64, demand float64) bool {
			res, _ := alloc.Allocate(demand, connectorsFrom(ps))
			for i, p := range res.Profiles {
				delta := ps[i] - p.Power
				if delta < 0 {
					return false
				}
				if delta > 0 && delta < DefaultMinImpact*ps[i]-tol {
					return false
				}
			}
			return true
		},
		powerGen, demandGen,
	))

	properties.Property("total never increases and shortfall is consistent", prop.ForAll(
		func(ps []float64, demand float64) bool {
			res, err := alloc.Allocate(demand, connectorsFrom(ps))
			var sum float64
			for _, p := range res.Profiles {
				sum += p.Power
			}
			if sum > res.TotalBefore+tol {
				return false
			}
			if err != nil {
				return res.Shortfall > 0 && math.Abs(sum-res.TotalAfter) < tol
			}
			return res.Shortfall == 0 && (sum <= demand+tol || res.TotalBefore <= demand)
		},
		powerGen, demandGen,
	))

	properties.TestingRun(t)
}
