package product

import (
	"slices"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/ir"
)

// Anchor is one named fact reference.
type Anchor struct {
	Name      string
	Reference fact.Reference
}

// Tuple is an ordered list of named references identifying which facts
// produced a result.
type Tuple []Anchor

// Get returns the reference bound to name.
func (t Tuple) Get(name string) (fact.Reference, bool) {
	for _, a := range t {
		if a.Name == name {
			return a.Reference, true
		}
	}
	return fact.Reference{}, false
}

// References returns the references in tuple order.
func (t Tuple) References() []fact.Reference {
	refs := make([]fact.Reference, len(t))
	for i, a := range t {
		refs[i] = a.Reference
	}
	return refs
}

// Equal compares as sets of anchors.
func (t Tuple) Equal(other Tuple) bool {
	if len(t) != len(other) {
		return false
	}
	for _, a := range t {
		if !slices.Contains(other, a) {
			return false
		}
	}
	return true
}

// Key returns a canonical string that is equal for equal tuples.
func (t Tuple) Key() string {
	obj := make(ir.IRObject, len(t))
	for _, a := range t {
		obj[a.Name] = referenceValue(a.Reference)
	}
	b, err := ir.MarshalCanonical(obj)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// Product converts the tuple to a product of Simple elements.
func (t Tuple) Product() Product {
	var p Product
	for _, a := range t {
		p = p.With(a.Name, Simple{Reference: a.Reference})
	}
	return p
}
