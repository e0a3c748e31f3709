// Package allocation computes new connector set-points for a site whose
// aggregate draw exceeds its demand target.
//
// The policy is greedy and deterministic: connectors are visited from the
// highest to the lowest current draw and each one is cut by at most
// MaxReduction of its own draw until the deficit is covered. Cuts smaller
// than MinImpact of a connector's draw are not applied and do not count
// toward the deficit. Connectors with equal draw keep their input order
// (stable sort); callers may rely on this tie-break.
//
// Every input connector receives exactly one profile entry, in input order,
// even when it is left unchanged.
package allocation
