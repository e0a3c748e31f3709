package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	messagesTotal   *prometheus.CounterVec
	handlingSeconds *prometheus.HistogramVec
	batchSize       prometheus.Histogram
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Histogram) {
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Inbound telemetry messages by type and outcome",
		},
		[]string{"type", "outcome"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_handling_seconds",
			Help:    "Time spent decoding and handling one message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
	batch := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_size",
			Help:    "Number of messages returned by one fetch",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)
	return total, dur, batch
}

func init() {
	messagesTotal, handlingSeconds, batchSize = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers ingest metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(messagesTotal, handlingSeconds, batchSize)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	messagesTotal, handlingSeconds, batchSize = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
