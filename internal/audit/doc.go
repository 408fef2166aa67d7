// Package audit records finished generation runs and their per-account rows
// in SQLite for later review.
package audit
