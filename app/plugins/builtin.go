package plugins

import (
	"fmt"

	"github.com/kilianp07/sitepower/core/factory"
	"github.com/kilianp07/sitepower/core/prediction"
)

type curveConf struct {
	Checkpoints []float64 `json:"checkpoints"`
	DecayRate   float64   `json:"decay_rate"`
	SegmentSize float64   `json:"segment_size"`
}

type capacityModel struct {
	Capacity float64 `json:"capacity"`
	Model    string  `json:"model"`
}

type recognizerConf struct {
	Models []capacityModel `json:"models"`
}

func init() {
	mustRegister(RegisterPredictor("curve", func(conf map[string]any) (prediction.Predictor, error) {
		var c curveConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		for _, cp := range c.Checkpoints {
			if cp <= 0 || cp > 100 {
				return nil, fmt.Errorf("checkpoint %v outside (0,100]", cp)
			}
		}
		return prediction.CurveModel{Checkpoints: c.Checkpoints, DecayRate: c.DecayRate, SegmentSize: c.SegmentSize}, nil
	}))

	mustRegister(RegisterRecognizer("default", func(conf map[string]any) (prediction.Recognizer, error) {
		var c recognizerConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if len(c.Models) == 0 {
			return prediction.DefaultRecognizer{}, nil
		}
		by := make(map[float64]string, len(c.Models))
		for _, m := range c.Models {
			if m.Model == "" {
				return nil, fmt.Errorf("model name missing for capacity %v", m.Capacity)
			}
			by[m.Capacity] = m.Model
		}
		return prediction.DefaultRecognizer{ByCapacity: by}, nil
	}))
}

func mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}
