// Package engine holds the two pure-computation stages of the pipeline:
// the Resolver, which deterministically maps an element's flag snapshot to
// an ordered effect set, and the Scheduler, which diffs successive effect
// sets into cancellation-safe transition execution against the host UI's
// applier.
//
// Data flow for one element:
//
//	bridge -> state.Store (mutation)
//	       -> Resolver (recompute, incremental via the table's index)
//	       -> Scheduler (diff + animate)
//	       -> Applier (host UI)
//
// Neither stage mutates element state; both read snapshots owned by the
// state package. The compiled table is shared read-only. All operations
// for one element are serialized by the bridge's event loop; different
// elements are independent, and the Scheduler carries its own lock so
// per-element pipelines may run on separate goroutines.
package engine
