// Package store provides SQLite-backed durable storage for fact graphs.
//
// The store is append-only:
//   - facts: one row per fact, keyed by (type, hash); seq records save order
//   - edges: predecessor links by seq, used to load predecessor closures
//   - signatures: zero or more signatures per fact
//
// Saving is idempotent. A fact already present is left untouched and only new
// signatures are added. Facts are written in topological order, so seq order
// is always a valid topological order when reading back.
//
// Every query that returns facts orders by seq ASC. Loading recomputes every
// fact hash; a row whose content no longer matches its hash is reported as a
// *fact.IntegrityError rather than returned.
//
// The connection runs in WAL mode with synchronous=NORMAL, a five second
// busy timeout and foreign keys enforced.
//
// Fields and predecessors are stored as deterministic CBOR (package codec).
package store
