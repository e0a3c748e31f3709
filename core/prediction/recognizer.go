package prediction

import "github.com/kilianp07/sitepower/core/model"

// DefaultModel is reported when no classifier recognises the vehicle.
const DefaultModel = "default_model"

// Recognizer classifies a vehicle from the characteristics it reports at
// plug-in.
type Recognizer interface {
	Recognize(v model.VehicleData) (string, error)
}

// DefaultRecognizer labels every vehicle with DefaultModel, optionally
// overridden by an exact capacity lookup.
type DefaultRecognizer struct {
	ByCapacity map[float64]string
}

// Recognize returns the configured label for the vehicle capacity or
// DefaultModel.
func (r DefaultRecognizer) Recognize(v model.VehicleData) (string, error) {
	if r.ByCapacity != nil {
		if m, ok := r.ByCapacity[v.Capacity]; ok {
			return m, nil
		}
	}
	return DefaultModel, nil
}
