package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/sitepower/core/events"
	coremetrics "github.com/kilianp07/sitepower/core/metrics"
	"github.com/kilianp07/sitepower/core/model"
)

// PromSink exposes per-site gauges and counters for reallocations, demand
// changes, alerts and predictions. Run-level counters live next to the code
// that produces them; this sink adds the site dimension.
type PromSink struct {
	demand      *prometheus.GaugeVec
	powerAfter  *prometheus.GaugeVec
	adjusted    *prometheus.CounterVec
	changes     *prometheus.CounterVec
	alertsOpen  *prometheus.GaugeVec
	predictions *prometheus.GaugeVec
}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered under the same name are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		demand: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "site_demand_kw",
			Help: "Last demand target observed for a site",
		}, []string{"site_no"}),
		powerAfter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "site_allocated_power_kw",
			Help: "Aggregate power of the last profile computed for a site",
		}, []string{"site_no"}),
		adjusted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectors_adjusted_total",
			Help: "Number of connector set-points changed by reallocations",
		}, []string{"site_no", "dry_run"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "demand_changes_total",
			Help: "Number of demand changes that triggered a reallocation",
		}, []string{"site_no"}),
		alertsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alerts_raised_open",
			Help: "Alerts raised minus alerts resolved since start",
		}, []string{"site_no", "alert_type"}),
		predictions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "predicted_power_kw",
			Help: "Last predicted power per site and target state of charge",
		}, []string{"site_no", "target_soc"}),
	}
	var err error
	if s.demand, err = register(reg, s.demand); err != nil {
		return nil, err
	}
	if s.powerAfter, err = register(reg, s.powerAfter); err != nil {
		return nil, err
	}
	if s.adjusted, err = register(reg, s.adjusted); err != nil {
		return nil, err
	}
	if s.changes, err = register(reg, s.changes); err != nil {
		return nil, err
	}
	if s.alertsOpen, err = register(reg, s.alertsOpen); err != nil {
		return nil, err
	}
	if s.predictions, err = register(reg, s.predictions); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordReallocation updates the site gauges.
func (s *PromSink) RecordReallocation(ev coremetrics.ReallocationEvent) error {
	if !ev.DryRun {
		s.demand.WithLabelValues(ev.SiteNo).Set(ev.Demand)
		s.powerAfter.WithLabelValues(ev.SiteNo).Set(ev.TotalAfter)
	}
	s.adjusted.WithLabelValues(ev.SiteNo, strconv.FormatBool(ev.DryRun)).Add(float64(ev.Adjusted))
	return nil
}

// RecordDemandChange counts demand changes.
func (s *PromSink) RecordDemandChange(ev coremetrics.DemandChangeEvent) error {
	s.demand.WithLabelValues(ev.SiteNo).Set(ev.Demand)
	s.changes.WithLabelValues(ev.SiteNo).Inc()
	return nil
}

// RecordAlert tracks raised and resolved alerts.
func (s *PromSink) RecordAlert(ev coremetrics.AlertEvent) error {
	g := s.alertsOpen.WithLabelValues(ev.SiteNo, string(ev.Type))
	switch ev.Transition {
	case events.AlertRaised:
		g.Inc()
	case events.AlertResolved:
		g.Dec()
	}
	return nil
}

// RecordPrediction stores the last predicted power per checkpoint.
func (s *PromSink) RecordPrediction(ev coremetrics.PredictionEvent) error {
	for _, r := range ev.Results {
		s.predictions.WithLabelValues(ev.SiteNo, socLabel(r)).Set(r.PredictedPower)
	}
	return nil
}

func socLabel(r model.PredictionResult) string {
	return strconv.FormatFloat(r.TargetSOC, 'f', -1, 64)
}
