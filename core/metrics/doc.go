// Package metrics defines the sinks recording reallocations, alerts, inbound
// messages and predictions. MetricsSink is the mandatory contract; the
// optional recorder interfaces are discovered by type assertion so a sink
// only implements what its backend can store. Sinks such as PromSink and
// InfluxSink live in infra/metrics and register themselves with the factory;
// NewMetricsSink wraps several configured sinks into a MultiSink.
package metrics
