// Package graph builds the immutable dependency graph of declared callbacks.
//
// Build splits each Declaration into output, input and state bindings,
// validates them, and indexes the valid ones four ways:
//   - exact outputs and exact inputs, keyed by plain id then property
//   - wildcard output and input patterns, keyed by key signature (the
//     sorted, comma-joined keys of the id) then property
//
// Lookups by a concrete component go through the exact maps for plain ids
// and scan the patterns of the id's key signature otherwise. Patterns keep
// declaration order, which makes "first match wins" deterministic.
//
// Validation:
//
// Build never stops at the first problem. Every rule is checked for every
// declaration and each failure goes to the ErrorSink with a title and
// explanatory lines. The rules cover missing outputs or inputs, malformed
// ids and properties, wildcard markers in the wrong role, outputs claimed
// twice (exactly or through overlapping wildcards), a binding used as both
// input and output of one callback, and MATCH keys that differ between
// outputs and inputs. One failure anywhere leaves the Graph empty.
//
// Cycle detection:
//
// Wildcard bindings are expanded against every wildcard value seen across
// all declarations, plus a value before and after each, into a MultiGraph
// of concrete "id.prop" nodes. OverallOrder sorts it topologically and
// reports the first loop as a *CycleError. The expansion can only see
// values the declarations name, so cycles that appear only in a live layout
// are left to the scheduler's quota.
//
// A Graph is read-only after Build and safe to share between goroutines.
package graph
