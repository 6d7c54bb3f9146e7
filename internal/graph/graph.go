package graph

import (
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/signing"
)

// maxDepth bounds the layer chain. Lookups walk the chain, so deeper graphs
// are flattened into a single layer when they are derived.
const maxDepth = 16

// Envelope is a fact with the signatures that accompany it.
type Envelope struct {
	Fact       fact.Fact
	Signatures []signing.FactSignature
}

type entry struct {
	fact fact.Fact
	sigs []signing.FactSignature
	seq  int
}

type edge struct {
	role      string
	successor fact.Reference
}

// Graph is an immutable fact graph. The zero value is not usable; start
// from Empty.
type Graph struct {
	parent *Graph
	depth  int
	count  int

	// entries holds facts added in this layer and, for facts owned by an
	// ancestor, replacement entries carrying merged signatures.
	entries map[fact.Reference]*entry
	added   []fact.Reference

	indexOnce sync.Once
	index     map[fact.Reference][]edge
}

var empty = &Graph{entries: map[fact.Reference]*entry{}}

// Empty returns the graph with no facts.
func Empty() *Graph {
	return empty
}

// FromEnvelopes builds a graph by adding envelopes in order.
func FromEnvelopes(envelopes ...Envelope) (*Graph, error) {
	return Empty().AddAll(envelopes...)
}

func (g *Graph) lookup(ref fact.Reference) (*entry, bool) {
	for l := g; l != nil; l = l.parent {
		if e, ok := l.entries[ref]; ok {
			return e, true
		}
	}
	return nil, false
}

// Len returns the number of facts.
func (g *Graph) Len() int {
	return g.count
}

// Contains reports whether ref is present.
func (g *Graph) Contains(ref fact.Reference) bool {
	_, ok := g.lookup(ref)
	return ok
}

// GetFact returns the fact for ref or *NotFoundError.
func (g *Graph) GetFact(ref fact.Reference) (fact.Fact, error) {
	e, ok := g.lookup(ref)
	if !ok {
		return fact.Fact{}, &NotFoundError{Reference: ref}
	}
	return e.fact, nil
}

// GetSignatures returns a copy of the signatures recorded for ref. Absent
// facts have no signatures.
func (g *Graph) GetSignatures(ref fact.Reference) []signing.FactSignature {
	e, ok := g.lookup(ref)
	if !ok {
		return nil
	}
	return slices.Clone(e.sigs)
}

// Envelope returns the envelope for ref or *NotFoundError.
func (g *Graph) Envelope(ref fact.Reference) (Envelope, error) {
	e, ok := g.lookup(ref)
	if !ok {
		return Envelope{}, &NotFoundError{Reference: ref}
	}
	return Envelope{Fact: e.fact, Signatures: slices.Clone(e.sigs)}, nil
}

// Seq returns the insertion position of ref. Positions are dense, start at
// zero and never change once assigned.
func (g *Graph) Seq(ref fact.Reference) (int, bool) {
	e, ok := g.lookup(ref)
	if !ok {
		return 0, false
	}
	return e.seq, true
}

// layers returns the chain from the root layer to g.
func (g *Graph) layers() []*Graph {
	chain := make([]*Graph, 0, g.depth+1)
	for l := g; l != nil; l = l.parent {
		chain = append(chain, l)
	}
	slices.Reverse(chain)
	return chain
}

// References returns every fact reference in insertion order.
func (g *Graph) References() []fact.Reference {
	refs := make([]fact.Reference, 0, g.count)
	for _, l := range g.layers() {
		refs = append(refs, l.added...)
	}
	return refs
}

// TopologicalOrder returns references so that every predecessor precedes
// its successors. Insertion order already has this property.
func (g *Graph) TopologicalOrder() []fact.Reference {
	return g.References()
}

// All iterates envelopes in insertion order.
func (g *Graph) All() iter.Seq[Envelope] {
	return func(yield func(Envelope) bool) {
		for _, ref := range g.References() {
			e, _ := g.lookup(ref)
			if !yield(Envelope{Fact: e.fact, Signatures: slices.Clone(e.sigs)}) {
				return
			}
		}
	}
}

// Envelopes returns every envelope in insertion order.
func (g *Graph) Envelopes() []Envelope {
	out := make([]Envelope, 0, g.count)
	for env := range g.All() {
		out = append(out, env)
	}
	return out
}

// Add returns a graph containing env. Adding a fact that is already present
// merges signatures. Missing predecessors fail with *DanglingPredecessorError
// and leave g unchanged.
func (g *Graph) Add(env Envelope) (*Graph, error) {
	return g.AddAll(env)
}

// AddFact adds an unsigned fact.
func (g *Graph) AddFact(f fact.Fact) (*Graph, error) {
	return g.Add(Envelope{Fact: f})
}

// AddAll adds envelopes in order as one step: either all are added or the
// receiver is returned with the first error.
func (g *Graph) AddAll(envelopes ...Envelope) (*Graph, error) {
	b := g.derive()
	for _, env := range envelopes {
		if env.Fact.IsZero() {
			return g, fmt.Errorf("add: zero fact")
		}
		var missing []fact.Reference
		for _, pred := range env.Fact.PredecessorReferences() {
			if !b.contains(pred) {
				missing = append(missing, pred)
			}
		}
		if len(missing) > 0 {
			return g, &DanglingPredecessorError{Fact: env.Fact.Reference(), Missing: missing}
		}
		b.put(env.Fact, env.Signatures)
	}
	return b.finish(), nil
}

// Union returns a graph holding every envelope of g and other. Signatures of
// shared facts are merged as a set. Hashes are not re-validated; both inputs
// are closed graphs, so replaying other in its insertion order cannot dangle.
func (g *Graph) Union(other *Graph) *Graph {
	if other == nil || other == g || other.count == 0 {
		return g
	}
	if g.count == 0 {
		return other
	}
	b := g.derive()
	for env := range other.All() {
		b.put(env.Fact, env.Signatures)
	}
	return b.finish()
}

// Closure returns the predecessor-closed subgraph containing refs, keeping
// g's insertion order and signatures.
func (g *Graph) Closure(refs ...fact.Reference) (*Graph, error) {
	keep := make(map[fact.Reference]bool)
	stack := slices.Clone(refs)
	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if keep[ref] {
			continue
		}
		e, ok := g.lookup(ref)
		if !ok {
			return nil, &NotFoundError{Reference: ref}
		}
		keep[ref] = true
		stack = append(stack, e.fact.PredecessorReferences()...)
	}

	b := Empty().derive()
	for _, ref := range g.References() {
		if keep[ref] {
			e, _ := g.lookup(ref)
			b.put(e.fact, e.sigs)
		}
	}
	return b.finish(), nil
}

// Successors returns facts naming ref as a predecessor under role, in
// insertion order. An empty role matches every role.
func (g *Graph) Successors(ref fact.Reference, role string) []fact.Reference {
	var out []fact.Reference
	for _, l := range g.layers() {
		for _, e := range l.successorIndex()[ref] {
			if role == "" || e.role == role {
				out = append(out, e.successor)
			}
		}
	}
	return out
}

// successorIndex maps each predecessor to the edges from facts first added
// in this layer. Built once per layer.
func (g *Graph) successorIndex() map[fact.Reference][]edge {
	g.indexOnce.Do(func() {
		g.index = make(map[fact.Reference][]edge)
		for _, ref := range g.added {
			f := g.entries[ref].fact
			for _, p := range f.Predecessors() {
				for _, pred := range p.References() {
					g.index[pred] = append(g.index[pred], edge{role: p.Role(), successor: ref})
				}
			}
		}
	})
	return g.index
}

// Equal reports whether both graphs hold the same facts with the same
// signature sets. Insertion order is ignored.
func (g *Graph) Equal(other *Graph) bool {
	if g == other {
		return true
	}
	if g.count != other.count {
		return false
	}
	for _, ref := range g.References() {
		a, _ := g.lookup(ref)
		b, ok := other.lookup(ref)
		if !ok || !sameSignatures(a.sigs, b.sigs) {
			return false
		}
	}
	return true
}

func sameSignatures(a, b []signing.FactSignature) bool {
	if len(a) != len(b) {
		return false
	}
	for _, s := range a {
		if !slices.Contains(b, s) {
			return false
		}
	}
	return true
}

// mergeSignatures returns existing plus any of incoming not already present,
// and whether anything was added.
func mergeSignatures(existing, incoming []signing.FactSignature) ([]signing.FactSignature, bool) {
	out := existing
	changed := false
	for _, s := range incoming {
		if slices.Contains(out, s) {
			continue
		}
		if !changed {
			out = slices.Clone(existing)
			changed = true
		}
		out = append(out, s)
	}
	return out, changed
}
