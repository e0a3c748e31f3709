// Package factory instantiates pluggable components from configuration. A
// component is selected by its type name; its raw settings are decoded into
// a typed struct by the registered constructor.
//
//	reg := factory.NewRegistry[prediction.Predictor]()
//	reg.Register("curve", func(conf map[string]any) (prediction.Predictor, error) {
//	    var c struct{ DecayRate float64 `json:"decay_rate"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return prediction.CurveModel{DecayRate: c.DecayRate}, nil
//	})
//	p, err := reg.Create(factory.ModuleConfig{Type: "curve", Conf: map[string]any{"decay_rate": 0.4}})
package factory
