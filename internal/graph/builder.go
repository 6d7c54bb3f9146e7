package graph

import (
	"slices"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/signing"
)

// builder accumulates one new layer over a base graph.
type builder struct {
	base    *Graph
	entries map[fact.Reference]*entry
	added   []fact.Reference
}

func (g *Graph) derive() *builder {
	return &builder{base: g, entries: make(map[fact.Reference]*entry)}
}

func (b *builder) lookup(ref fact.Reference) (*entry, bool) {
	if e, ok := b.entries[ref]; ok {
		return e, true
	}
	return b.base.lookup(ref)
}

func (b *builder) contains(ref fact.Reference) bool {
	_, ok := b.lookup(ref)
	return ok
}

func (b *builder) put(f fact.Fact, sigs []signing.FactSignature) {
	ref := f.Reference()
	if e, ok := b.lookup(ref); ok {
		merged, changed := mergeSignatures(e.sigs, sigs)
		if changed {
			b.entries[ref] = &entry{fact: e.fact, sigs: merged, seq: e.seq}
		}
		return
	}
	unique, _ := mergeSignatures(nil, sigs)
	b.entries[ref] = &entry{
		fact: f,
		sigs: slices.Clip(unique),
		seq:  b.base.count + len(b.added),
	}
	b.added = append(b.added, ref)
}

func (b *builder) finish() *Graph {
	if len(b.entries) == 0 {
		return b.base
	}
	next := &Graph{
		parent:  b.base,
		depth:   b.base.depth + 1,
		count:   b.base.count + len(b.added),
		entries: b.entries,
		added:   b.added,
	}
	if b.base.count == 0 {
		next.parent = nil
		next.depth = 0
	}
	if next.depth > maxDepth {
		return next.flatten()
	}
	return next
}

// flatten copies every layer into a single root layer.
func (g *Graph) flatten() *Graph {
	entries := make(map[fact.Reference]*entry, g.count)
	for _, l := range g.layers() {
		for ref, e := range l.entries {
			entries[ref] = e
		}
	}
	return &Graph{
		count:   g.count,
		entries: entries,
		added:   g.References(),
	}
}
