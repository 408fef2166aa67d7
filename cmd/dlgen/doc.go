// Package main hosts the dlgen CLI entrypoint and command graph.
//
// The Cobra-based command tree covers configuration scaffolding, audit trail
// inspection, amount spelling checks, and ad hoc PDF conversion. The daemon
// owns the generation pipeline; this binary stays declarative and surfaces
// the internal packages through dedicated commands.
package main
