// Package graph holds facts and their signatures as an immutable,
// content-addressed DAG.
//
// A Graph value never changes. Add and Union return a new Graph that shares
// structure with the receiver: each derived graph is a thin layer over its
// parent, and layers are flattened once the chain gets deep. Readers holding
// an older Graph keep a consistent view for as long as they hold it.
//
// Invariants:
//   - closure: every predecessor of a present fact is present
//   - acyclic: follows from closure on Add plus content addressing
//   - append-only: envelopes are never removed; signatures only accumulate
//
// Insertion order is a topological order because Add rejects facts whose
// predecessors are missing. Head publishes successive Graph snapshots to
// concurrent readers.
package graph
