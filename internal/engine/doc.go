// Package engine orchestrates one scoring run per lead.
//
// Process runs a fixed, linear pipeline:
//
//	record collaborator output → fill fallbacks → normalize → detect conflicts
//	→ score → confidence → tier → explain → record final score
//
// An Engine holds only read-only configuration and may be shared across
// goroutines. Every Process call builds its own provenance tracker, so
// lineage never leaks between leads.
//
// Process never fails on lead data. Missing collaborator output becomes a
// fallback with a penalty; malformed values normalize to safe defaults.
// The only error is an unknown weight profile, reported by New.
package engine
