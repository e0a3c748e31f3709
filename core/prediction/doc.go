// Package prediction forecasts the charging power of a session at upcoming
// state-of-charge checkpoints and recognises vehicle models from their
// electrical characteristics. Results are advisory and never feed back into
// power allocation.
package prediction
