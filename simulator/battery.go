package simulator

import (
	"math"
	"time"
)

// taperSOC is the state of charge above which the accepted power falls
// linearly to zero at full charge.
const taperSOC = 80.0

// Battery models an EV battery being charged at a connector.
type Battery struct {
	CapacityKWh  float64 // total capacity
	SOC          float64 // state of charge in percent
	ChargeRateKW float64 // maximum charging power
}

// Charge draws up to powerKW for dt and returns the power actually accepted
// after the rate limit, the taper and the remaining headroom.
func (b *Battery) Charge(powerKW float64, dt time.Duration) float64 {
	hours := dt.Hours()
	if hours <= 0 || powerKW <= 0 || b.CapacityKWh <= 0 {
		return 0
	}
	p := math.Min(powerKW, b.ChargeRateKW)
	if b.SOC > taperSOC {
		p = math.Min(p, b.ChargeRateKW*(100-b.SOC)/(100-taperSOC))
	}
	avail := (100 - b.SOC) / 100 * b.CapacityKWh
	energy := p * hours
	if energy > avail {
		energy = avail
		p = energy / hours
	}
	b.SOC += energy / b.CapacityKWh * 100
	if b.SOC > 100 {
		b.SOC = 100
	}
	return p
}

// Full reports whether the battery reached 100 %.
func (b *Battery) Full() bool { return b.SOC >= 100-1e-9 }
