// Package plugins holds the registries for the pluggable prediction
// components selected by type name in the configuration.
package plugins

import (
	"github.com/kilianp07/sitepower/core/factory"
	"github.com/kilianp07/sitepower/core/prediction"
)

var (
	Predictors  = factory.NewRegistry[prediction.Predictor]()
	Recognizers = factory.NewRegistry[prediction.Recognizer]()
)

func RegisterPredictor(name string, f factory.Factory[prediction.Predictor]) error {
	return Predictors.Register(name, f)
}

func RegisterRecognizer(name string, f factory.Factory[prediction.Recognizer]) error {
	return Recognizers.Register(name, f)
}

// NewPredictor builds the predictor named by cfg.
func NewPredictor(cfg factory.ModuleConfig) (prediction.Predictor, error) {
	return Predictors.Create(cfg)
}

// NewRecognizer builds the recognizer named by cfg.
func NewRecognizer(cfg factory.ModuleConfig) (prediction.Recognizer, error) {
	return Recognizers.Create(cfg)
}
