// Package product models the results of matching a specification: named
// bindings to single facts or to nested collections of further products.
package product

import (
	"slices"
	"strings"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/ir"
)

// Element is the sealed set of binding values: Simple and Collection.
type Element interface {
	element()

	// References flattens the element to every fact reference it reaches,
	// duplicates included.
	References() []fact.Reference
}

// Simple binds one fact.
type Simple struct {
	Reference fact.Reference
}

func (Simple) element() {}

// References returns the bound reference.
func (s Simple) References() []fact.Reference {
	return []fact.Reference{s.Reference}
}

// Collection binds an ordered sequence of products.
type Collection struct {
	Products []Product
}

func (Collection) element() {}

// References flattens every product in order.
func (c Collection) References() []fact.Reference {
	var out []fact.Reference
	for _, p := range c.Products {
		out = append(out, p.GetFactReferences()...)
	}
	return out
}

// ElementsEqual compares elements structurally. Collections compare in order.
func ElementsEqual(a, b Element) bool {
	switch av := a.(type) {
	case Simple:
		bv, ok := b.(Simple)
		return ok && av.Reference == bv.Reference
	case Collection:
		bv, ok := b.(Collection)
		if !ok || len(av.Products) != len(bv.Products) {
			return false
		}
		for i := range av.Products {
			if !av.Products[i].Equal(bv.Products[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Binding is one named element.
type Binding struct {
	Name    string
	Element Element
}

// Product is an immutable set of named bindings. Insertion order is kept for
// output but is irrelevant to Equal, Key and Hash. The zero Product is empty.
type Product struct {
	bindings []Binding
}

// New builds a product from bindings. A later binding replaces an earlier one
// with the same name.
func New(bindings ...Binding) Product {
	var p Product
	for _, b := range bindings {
		p = p.With(b.Name, b.Element)
	}
	return p
}

// With returns a product with name bound to e. Rebinding a name keeps its
// original position. The receiver is unchanged.
func (p Product) With(name string, e Element) Product {
	i := p.index(name)
	next := make([]Binding, len(p.bindings), len(p.bindings)+1)
	copy(next, p.bindings)
	if i >= 0 {
		next[i] = Binding{Name: name, Element: e}
	} else {
		next = append(next, Binding{Name: name, Element: e})
	}
	return Product{bindings: next}
}

func (p Product) index(name string) int {
	return slices.IndexFunc(p.bindings, func(b Binding) bool { return b.Name == name })
}

// Get returns the element bound to name.
func (p Product) Get(name string) (Element, bool) {
	i := p.index(name)
	if i < 0 {
		return nil, false
	}
	return p.bindings[i].Element, true
}

// Reference returns the fact bound to name when it is a Simple element.
func (p Product) Reference(name string) (fact.Reference, bool) {
	e, ok := p.Get(name)
	if !ok {
		return fact.Reference{}, false
	}
	s, ok := e.(Simple)
	return s.Reference, ok
}

// Len returns the number of bindings.
func (p Product) Len() int {
	return len(p.bindings)
}

// Names returns binding names in insertion order.
func (p Product) Names() []string {
	names := make([]string, len(p.bindings))
	for i, b := range p.bindings {
		names[i] = b.Name
	}
	return names
}

// Bindings returns a copy of the bindings in insertion order.
func (p Product) Bindings() []Binding {
	return slices.Clone(p.bindings)
}

// Equal compares products as sets of (name, element) pairs.
func (p Product) Equal(other Product) bool {
	if len(p.bindings) != len(other.bindings) {
		return false
	}
	for _, b := range p.bindings {
		e, ok := other.Get(b.Name)
		if !ok || !ElementsEqual(b.Element, e) {
			return false
		}
	}
	return true
}

// GetFactReferences flattens every binding, in insertion order, to the
// references it reaches. Duplicates are kept.
func (p Product) GetFactReferences() []fact.Reference {
	var out []fact.Reference
	for _, b := range p.bindings {
		out = append(out, b.Element.References()...)
	}
	return out
}

// GetAnchor extracts the Simple bindings.
func (p Product) GetAnchor() Tuple {
	var t Tuple
	for _, b := range p.bindings {
		if s, ok := b.Element.(Simple); ok {
			t = append(t, Anchor{Name: b.Name, Reference: s.Reference})
		}
	}
	return t
}

// Value renders the product as an IR object: Simple elements become
// {"hash","type"} objects and Collections become arrays.
func (p Product) Value() ir.IRObject {
	obj := make(ir.IRObject, len(p.bindings))
	for _, b := range p.bindings {
		obj[b.Name] = elementValue(b.Element)
	}
	return obj
}

func elementValue(e Element) ir.IRValue {
	switch v := e.(type) {
	case Simple:
		return referenceValue(v.Reference)
	case Collection:
		arr := make(ir.IRArray, len(v.Products))
		for i, p := range v.Products {
			arr[i] = p.Value()
		}
		return arr
	default:
		return ir.IRNull{}
	}
}

func referenceValue(r fact.Reference) ir.IRObject {
	return ir.IRObject{"hash": ir.IRString(r.Hash), "type": ir.IRString(r.Type)}
}

// Key returns the canonical JSON of the product. Equal products have equal
// keys, so Key works for deduplication and as a map key.
func (p Product) Key() string {
	b, err := ir.MarshalCanonical(p.Value())
	if err != nil {
		// Values hold only strings, arrays and objects.
		panic(err)
	}
	return string(b)
}

// Hash returns a domain-separated hash of the canonical form.
func (p Product) Hash() string {
	return ir.HashWithDomain(ir.DomainProduct, []byte(p.Key()))
}

// MarshalJSON renders the canonical form.
func (p Product) MarshalJSON() ([]byte, error) {
	return []byte(p.Key()), nil
}

// String renders bindings in insertion order for logs and errors.
func (p Product) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, b := range p.bindings {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.Name)
		sb.WriteString(": ")
		switch v := b.Element.(type) {
		case Simple:
			sb.WriteString(v.Reference.String())
		case Collection:
			sb.WriteByte('[')
			for j, c := range v.Products {
				if j > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(c.String())
			}
			sb.WriteByte(']')
		}
	}
	sb.WriteByte('}')
	return sb.String()
}
