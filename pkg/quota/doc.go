// Package quota computes read-only AI usage quota snapshots. It never mutates
// state and never reads the wall clock; the caller supplies the current time
// and the (possibly reset-adjusted) usage count, which keeps every status
// computation deterministic and testable.
package quota
