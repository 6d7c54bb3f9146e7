package fact

import (
	"fmt"
	"slices"
)

// Predecessor is a named edge from a fact to one (Single) or many (Multiple)
// earlier facts.
//
// Equality treats the references of a Multiple predecessor as a set; the
// canonical form keeps the order in which they were supplied.
type Predecessor struct {
	role       string
	references []Reference
	multiple   bool
}

// Single creates a predecessor with exactly one reference.
func Single(role string, ref Reference) Predecessor {
	return Predecessor{role: role, references: []Reference{ref}}
}

// Multiple creates a predecessor with an ordered list of distinct references.
// Duplicates are reported by Validate (and therefore by New).
func Multiple(role string, refs ...Reference) Predecessor {
	return Predecessor{role: role, references: slices.Clone(refs), multiple: true}
}

// Role returns the role name.
func (p Predecessor) Role() string {
	return p.role
}

// IsMultiple reports whether this is a Multiple predecessor.
func (p Predecessor) IsMultiple() bool {
	return p.multiple
}

// References returns a copy of the referenced facts in supplied order.
func (p Predecessor) References() []Reference {
	return slices.Clone(p.references)
}

// Equal compares role, shape and references. Multiple references compare as sets.
func (p Predecessor) Equal(other Predecessor) bool {
	if p.role != other.role || p.multiple != other.multiple || len(p.references) != len(other.references) {
		return false
	}
	if !p.multiple {
		return p.references[0] == other.references[0]
	}
	seen := make(map[Reference]bool, len(p.references))
	for _, r := range p.references {
		seen[r] = true
	}
	for _, r := range other.references {
		if !seen[r] {
			return false
		}
	}
	return true
}

// Validate checks the predecessor shape.
func (p Predecessor) Validate() error {
	if p.role == "" {
		return &ValidationError{Field: "predecessors", Message: "role name is required"}
	}
	if !p.multiple && len(p.references) != 1 {
		return &ValidationError{Field: "predecessors." + p.role, Message: "single predecessor needs exactly one reference"}
	}
	seen := make(map[Reference]bool, len(p.references))
	for i, r := range p.references {
		if err := r.Validate(); err != nil {
			return &ValidationError{Field: fmt.Sprintf("predecessors.%s[%d]", p.role, i), Message: err.Error()}
		}
		if seen[r] {
			return &ValidationError{Field: "predecessors." + p.role, Message: fmt.Sprintf("duplicate reference %s", r)}
		}
		seen[r] = true
	}
	return nil
}
