// Package infra groups the adapters behind the core contracts: the MQTT and
// NATS buses, the SQL store, metrics sinks, the HTTP surface and the
// maintenance notifier. Adapters import core, never the other way round.
package infra
