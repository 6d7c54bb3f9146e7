package fact

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/factsync/internal/ir"
)

// Fact is an immutable, typed record identified by the hash of its canonical
// form. The zero Fact is invalid; construct with New or Restore.
type Fact struct {
	ref          Reference
	fields       Fields
	predecessors []Predecessor
}

// New builds a fact and computes its reference. Construction and hashing are
// a single step, so the returned Fact is always self-consistent.
//
// Field names and string values are converted to NFC, so the fact holds
// exactly the text that was hashed. Invalid UTF-8 and field names that
// coincide once normalized are rejected.
func New(factType string, fields Fields, predecessors ...Predecessor) (Fact, error) {
	normalized, err := normalizeFields(fields)
	if err != nil {
		return Fact{}, err
	}
	f, err := build(factType, normalized, predecessors)
	if err != nil {
		return Fact{}, fmt.Errorf("new %s: %w", factType, err)
	}
	return f, nil
}

func build(factType string, fields Fields, predecessors []Predecessor) (Fact, error) {
	if factType == "" {
		return Fact{}, &ValidationError{Field: "type", Message: "fact type is required"}
	}
	if err := validatePredecessors(predecessors); err != nil {
		return Fact{}, err
	}

	ownedFields := copyFields(fields)
	ownedPreds := slices.Clone(predecessors)

	hash, err := ComputeHash(factType, ownedFields, ownedPreds)
	if err != nil {
		return Fact{}, err
	}

	return Fact{
		ref:          Reference{Type: factType, Hash: hash},
		fields:       ownedFields,
		predecessors: ownedPreds,
	}, nil
}

// MustNew is like New but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustNew(factType string, fields Fields, predecessors ...Predecessor) Fact {
	f, err := New(factType, fields, predecessors...)
	if err != nil {
		panic(err)
	}
	return f
}

// Restore rebuilds a fact whose reference is already known (from storage or
// a peer) and fails with *IntegrityError if the content does not hash to it.
// Content is taken byte for byte; text that is not canonical is an integrity
// failure, never normalized.
func Restore(ref Reference, fields Fields, predecessors []Predecessor) (Fact, error) {
	if err := canonicalText(fields, predecessors); err != nil {
		return Fact{}, &IntegrityError{Reference: ref, Err: err}
	}
	f, err := build(ref.Type, fields, predecessors)
	if err != nil {
		return Fact{}, fmt.Errorf("restore %s: %w", ref, err)
	}
	if f.ref.Hash != ref.Hash {
		return Fact{}, &IntegrityError{Reference: ref, Computed: f.ref.Hash}
	}
	return f, nil
}

// Reference returns the fact's identity.
func (f Fact) Reference() Reference {
	return f.ref
}

// Type returns the fact type name.
func (f Fact) Type() string {
	return f.ref.Type
}

// IsZero reports whether f was never constructed.
func (f Fact) IsZero() bool {
	return f.ref.IsZero()
}

// Fields returns a copy of the field map.
func (f Fact) Fields() Fields {
	return copyFields(f.fields)
}

// Field returns one field value.
func (f Fact) Field(name string) (ir.IRScalar, bool) {
	v, ok := f.fields[name]
	return v, ok
}

// Predecessors returns a copy of the predecessor list in declaration order.
func (f Fact) Predecessors() []Predecessor {
	return slices.Clone(f.predecessors)
}

// Predecessor returns the predecessor declared under role.
func (f Fact) Predecessor(role string) (Predecessor, bool) {
	for _, p := range f.predecessors {
		if p.role == role {
			return p, true
		}
	}
	return Predecessor{}, false
}

// PredecessorReferences returns every referenced predecessor, roles in
// canonical order and references in supplied order. Duplicates across roles
// are kept once.
func (f Fact) PredecessorReferences() []Reference {
	roles := make([]string, 0, len(f.predecessors))
	byRole := make(map[string]Predecessor, len(f.predecessors))
	for _, p := range f.predecessors {
		roles = append(roles, p.role)
		byRole[p.role] = p
	}
	ir.SortKeys(roles)

	var refs []Reference
	seen := make(map[Reference]bool)
	for _, role := range roles {
		for _, r := range byRole[role].references {
			if !seen[r] {
				seen[r] = true
				refs = append(refs, r)
			}
		}
	}
	return refs
}

// Digest recomputes the raw digest from content. It does not trust the
// stored reference.
func (f Fact) Digest() ([]byte, error) {
	return Digest(f.ref.Type, f.fields, f.predecessors)
}

// Verify recomputes the hash and reports *IntegrityError on mismatch or when
// the content has no canonical form.
func (f Fact) Verify() error {
	if err := canonicalText(f.fields, f.predecessors); err != nil {
		return &IntegrityError{Reference: f.ref, Err: err}
	}
	hash, err := ComputeHash(f.ref.Type, f.fields, f.predecessors)
	if err != nil {
		return err
	}
	if hash != f.ref.Hash {
		return &IntegrityError{Reference: f.ref, Computed: hash}
	}
	return nil
}

// Equal compares identity. Content equality follows from hash equality.
func (f Fact) Equal(other Fact) bool {
	return f.ref == other.ref
}

func validatePredecessors(predecessors []Predecessor) error {
	seen := make(map[string]bool, len(predecessors))
	for _, p := range predecessors {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.role] {
			return &ValidationError{Field: "predecessors." + p.role, Message: "duplicate role"}
		}
		seen[p.role] = true
	}
	return nil
}

func normalizeFields(fields Fields) (Fields, error) {
	out := make(Fields, len(fields))
	origin := make(map[string]string, len(fields))
	for name, value := range fields {
		key, err := ir.NormalizeString(name)
		if err != nil {
			return nil, &ValidationError{Field: "fields", Message: err.Error()}
		}
		if prev, dup := origin[key]; dup {
			return nil, &ValidationError{
				Field:   "fields." + key,
				Message: fmt.Sprintf("field names %q and %q are the same text once normalized", prev, name),
			}
		}
		origin[key] = name

		if s, ok := value.(ir.IRString); ok {
			v, err := ir.NormalizeString(string(s))
			if err != nil {
				return nil, &ValidationError{Field: "fields." + key, Message: err.Error()}
			}
			value = ir.IRString(v)
		}
		out[key] = value
	}
	return out, nil
}

// canonicalText reports the first field name, string value or predecessor
// role that cannot appear in a canonical form as is.
func canonicalText(fields Fields, predecessors []Predecessor) error {
	for name, value := range fields {
		if err := ir.CheckString(name); err != nil {
			return fmt.Errorf("field name: %w", err)
		}
		if s, ok := value.(ir.IRString); ok {
			if err := ir.CheckString(string(s)); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
		}
	}
	for _, p := range predecessors {
		if err := ir.CheckString(p.role); err != nil {
			return fmt.Errorf("predecessor role: %w", err)
		}
		for _, r := range p.references {
			if err := ir.CheckString(r.Type); err != nil {
				return fmt.Errorf("predecessor %q type: %w", p.role, err)
			}
			if err := ir.CheckString(r.Hash); err != nil {
				return fmt.Errorf("predecessor %q hash: %w", p.role, err)
			}
		}
	}
	return nil
}

func copyFields(fields Fields) Fields {
	out := make(Fields, len(fields))
	maps.Copy(out, fields)
	for k, v := range out {
		if v == nil {
			out[k] = ir.IRNull{}
		}
	}
	return out
}

// Unverified builds a fact from parts received over a trust boundary without
// checking the hash. Callers must Verify (or Restore) before trusting it; the
// network decoder uses this so that integrity failures surface at the
// receiving authority rather than at decode time.
func Unverified(ref Reference, fields Fields, predecessors []Predecessor) Fact {
	return Fact{
		ref:          ref,
		fields:       copyFields(fields),
		predecessors: slices.Clone(predecessors),
	}
}
