// Package resolve turns property changes into resolved callbacks.
//
// A resolved callback (Callback) is a declared graph.Callback bound to one
// MATCH substitution, e.g. the instance of `{"index":MATCH}.children` for
// index 3. Its ResolvedID is the declared output string followed by the
// JSON list of MATCH values, so two requests for the same instance merge.
// Bindings are expanded on demand against a layout.Index, so the same
// instance can be re-resolved after the tree changes shape.
//
// Finding callbacks:
//   - ByOutput: the callback writing a concrete (id, prop)
//   - ByInput: every instance reading a concrete (id, prop), one per
//     distinct MATCH substitution among its live outputs
//   - LayoutCallbacks: the initial and triggered calls of an inserted or
//     removed layout chunk
//
// Deciding what runs:
//
// Priority ranks an instance by the depth and fan-out of the callbacks it
// feeds; ComparePriority runs the shallower ones first. Ready keeps back
// every instance whose inputs may still change, given what is active.
// Prune drops instances whose outputs left the layout.
//
// Functions here are pure: they read the graph and the index and never
// modify either. Callback values are owned by the caller.
package resolve
