package metrics

import "errors"

// MultiSink fans events out to several sinks. Optional recorders are only
// forwarded to the sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordReallocation forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordReallocation(ev ReallocationEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordReallocation(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordAlert forwards alert transitions.
func (m *MultiSink) RecordAlert(ev AlertEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(AlertRecorder); ok {
			if err := rec.RecordAlert(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordAudit forwards monitor pass summaries.
func (m *MultiSink) RecordAudit(ev AuditEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(AuditRecorder); ok {
			if err := rec.RecordAudit(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordMessage forwards message outcomes.
func (m *MultiSink) RecordMessage(ev MessageEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(MessageRecorder); ok {
			if err := rec.RecordMessage(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordDemandChange forwards demand changes.
func (m *MultiSink) RecordDemandChange(ev DemandChangeEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(DemandRecorder); ok {
			if err := rec.RecordDemandChange(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordPrediction forwards predictions.
func (m *MultiSink) RecordPrediction(ev PredictionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(PredictionRecorder); ok {
			if err := rec.RecordPrediction(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// CloseSink releases s when it holds resources. Both Close() and
// Close() error are supported; a MultiSink closes its members.
func CloseSink(s MetricsSink) error {
	switch c := s.(type) {
	case *MultiSink:
		var errs []error
		for _, m := range c.Sinks {
			if err := CloseSink(m); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	case interface{ Close() error }:
		return c.Close()
	case interface{ Close() }:
		c.Close()
	}
	return nil
}
