package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	reallocationsTotal   *prometheus.CounterVec
	reallocationDuration prometheus.Histogram
	profilesPublished    *prometheus.CounterVec
	siteShortfall        *prometheus.GaugeVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Histogram, *prometheus.CounterVec, *prometheus.GaugeVec) {
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reallocations_total",
			Help: "Number of reallocation runs by outcome",
		},
		[]string{"outcome"},
	)
	dur := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reallocation_duration_seconds",
			Help:    "Duration of a reallocation run from snapshot to last publish",
			Buckets: prometheus.DefBuckets,
		},
	)
	pub := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profiles_published_total",
			Help: "Number of power profile messages sent to the bus",
		},
		[]string{"result"},
	)
	short := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "site_demand_shortfall_kw",
			Help: "Power left above demand after the last reallocation of a site",
		},
		[]string{"site_no"},
	)
	return runs, dur, pub, short
}

func init() {
	reallocationsTotal, reallocationDuration, profilesPublished, siteShortfall = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers reallocation metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(reallocationsTotal, reallocationDuration, profilesPublished, siteShortfall)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	reallocationsTotal, reallocationDuration, profilesPublished, siteShortfall = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
