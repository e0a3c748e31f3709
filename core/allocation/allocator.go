package allocation

import (
	"errors"
	"sort"
	"time"

	"github.com/kilianp07/sitepower/core/model"
)

// ErrCapacityInsufficient is returned alongside a partial Result when the
// demand cannot be met even with every connector cut to its floor.
var ErrCapacityInsufficient = errors.New("allocation: demand cannot be met at maximum reduction")

// epsilon absorbs floating point residue when comparing the remaining deficit.
const epsilon = 1e-9

// Result is the outcome of one allocation run.
type Result struct {
	// Profiles holds one entry per input connector, in input order.
	Profiles    []model.PowerProfile `json:"profiles"`
	Demand      float64              `json:"demand"`
	TotalBefore float64              `json:"total_before"`
	TotalAfter  float64              `json:"total_after"`
	// Shortfall is the part of the deficit left uncovered, zero when the
	// demand was met.
	Shortfall float64 `json:"shortfall"`
	// Adjusted counts the connectors whose set-point changed.
	Adjusted int `json:"adjusted"`
}

// Allocator applies the greedy reduction policy. The zero value is not
// usable; build one with New.
type Allocator struct {
	cfg Config
	now func() time.Time
}

// New returns an Allocator using cfg. Unset parameters take their defaults.
func New(cfg Config) Allocator {
	cfg.SetDefaults()
	return Allocator{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of the allocator stamping profiles with now.
func (a Allocator) WithClock(now func() time.Time) Allocator {
	a.now = now
	return a
}

// Config returns the effective parameters.
func (a Allocator) Config() Config { return a.cfg }

// Allocate computes the profile bringing the connectors under demand. It
// performs no I/O. When the demand cannot be reached the partial profile is
// returned together with ErrCapacityInsufficient.
func (a Allocator) Allocate(demand float64, connectors []model.ConnectorState) (Result, error) {
	ts := a.now().UTC()
	total := model.TotalPower(connectors)
	res := Result{
		Profiles:    make([]model.PowerProfile, len(connectors)),
		Demand:      demand,
		TotalBefore: total,
		TotalAfter:  total,
	}
	for i, c := range connectors {
		res.Profiles[i] = model.PowerProfile{ChargerSN: c.ChargerSN, Power: c.CurrentPower, Timestamp: ts}
	}
	if total <= demand {
		return res, nil
	}

	order := make([]int, len(connectors))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return connectors[order[i]].CurrentPower > connectors[order[j]].CurrentPower
	})

	remaining := total - demand
	for _, idx := range order {
		cp := connectors[idx].CurrentPower
		if remaining <= epsilon || cp <= 0 {
			continue
		}
		floor := cp * (1 - a.cfg.MaxReduction)
		cut := cp - floor
		if remaining < cut {
			cut = remaining
		}
		if cut/cp < a.cfg.MinImpact {
			continue
		}
		res.Profiles[idx].Power = cp - cut
		res.TotalAfter -= cut
		res.Adjusted++
		remaining -= cut
	}

	if remaining > epsilon {
		res.Shortfall = remaining
		return res, ErrCapacityInsufficient
	}
	return res, nil
}
