// Package engine evaluates specifications against a fact graph.
//
// Evaluation is read-only over one graph snapshot:
//
//  1. Givens are bound to the supplied references (positionally).
//  2. Each match, in declaration order, produces candidates for its unknown
//     from its first path condition: walk predecessors from the right-hand
//     label, then walk successors back along the left-hand roles using the
//     graph's successor index.
//  3. Remaining conditions filter candidates. A No condition keeps a
//     candidate only when its nested matches have zero solutions.
//  4. Rows are the depth-first join of candidates, so the first match
//     varies slowest.
//  5. The projection turns each row into a product.Product; nested
//     specification components become Collection elements.
//
// Candidates are ordered by graph insertion sequence, which makes results
// deterministic for a given snapshot without implying any value order.
//
// Stream is lazy and restartable. Evaluate materializes every result and
// computes nested collections for different rows in parallel while keeping
// row order.
package engine
