package prediction

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/sitepower/core/model"
)

// ErrNonPositivePower is returned when a checkpoint must be evaluated but the
// current power cannot be used to derive a charging time.
var ErrNonPositivePower = errors.New("prediction: current power must be positive")

// Default curve parameters. Power is assumed to decay by 5% for every 10% of
// state of charge gained.
var DefaultCheckpoints = []float64{80, 90}

const (
	DefaultDecayRate   = 0.95
	DefaultSegmentSize = 10.0
)

// Predictor forecasts power at future state-of-charge checkpoints.
type Predictor interface {
	Predict(soc, power, capacity float64) ([]model.PredictionResult, error)
}

// CurveModel is a simplified exponential charge curve. The zero value uses
// the default checkpoints and decay.
type CurveModel struct {
	Checkpoints []float64
	DecayRate   float64
	SegmentSize float64
}

func (m CurveModel) params() ([]float64, float64, float64) {
	cps, decay, seg := m.Checkpoints, m.DecayRate, m.SegmentSize
	if len(cps) == 0 {
		cps = DefaultCheckpoints
	}
	if decay <= 0 {
		decay = DefaultDecayRate
	}
	if seg <= 0 {
		seg = DefaultSegmentSize
	}
	return cps, decay, seg
}

// Predict returns one result per checkpoint above soc. capacity is in kWh,
// power in kW; TimeToTarget is therefore in hours. A sample already past every
// checkpoint yields an empty result and no error.
func (m CurveModel) Predict(soc, power, capacity float64) ([]model.PredictionResult, error) {
	cps, decay, seg := m.params()
	out := make([]model.PredictionResult, 0, len(cps))
	for _, cp := range cps {
		if soc >= cp {
			continue
		}
		if power <= 0 {
			return nil, fmt.Errorf("%w: got %.3f kW", ErrNonPositivePower, power)
		}
		gap := cp - soc
		energy := capacity * gap / 100
		out = append(out, model.PredictionResult{
			TargetSOC:      cp,
			TimeToTarget:   energy / power,
			PredictedPower: power * math.Pow(decay, gap/seg),
		})
	}
	return out, nil
}

// Predict evaluates the default curve.
func Predict(soc, power, capacity float64) ([]model.PredictionResult, error) {
	return CurveModel{}.Predict(soc, power, capacity)
}
