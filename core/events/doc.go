// Package events defines the events emitted on the internal event bus.
//
// Available event types:
//   - DemandChangeEvent: a site demand moved and a reallocation was requested
//   - ReallocationEvent: outcome of a reallocation run
//   - AlertEvent: an alert was raised or resolved
//   - MessageEvent: outcome of one inbound bus message
package events
