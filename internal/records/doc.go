// Package records models uploaded account rows and the grouping rules the
// generation pipeline applies to them.
package records
