package alerting

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	auditPasses       prometheus.Counter
	auditDuration     prometheus.Histogram
	auditSiteFailures prometheus.Counter
	alertTransitions  *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, prometheus.Histogram, prometheus.Counter, *prometheus.CounterVec) {
	passes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alert_audit_passes_total",
		Help: "Number of alert audit passes",
	})
	dur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "alert_audit_duration_seconds",
		Help:    "Duration of one alert audit pass",
		Buckets: prometheus.DefBuckets,
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alert_audit_site_failures_total",
		Help: "Number of sites that could not be audited",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_transitions_total",
		Help: "Alert lifecycle transitions by type",
	}, []string{"alert_type", "transition"})
	return passes, dur, failures, transitions
}

func init() {
	auditPasses, auditDuration, auditSiteFailures, alertTransitions = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers monitor metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(auditPasses, auditDuration, auditSiteFailures, alertTransitions)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	auditPasses, auditDuration, auditSiteFailures, alertTransitions = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
