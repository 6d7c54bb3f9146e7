package fact

import (
	"fmt"
	"slices"

	"github.com/roach88/factsync/internal/ir"
)

// Encode converts a fact into plain Go values suitable for JSON, YAML or CBOR:
//
//	{"type": ..., "hash": ..., "fields": {...}, "predecessors": {role: ref | [ref...]}}
//
// where ref is {"type": ..., "hash": ...}.
func (f Fact) Encode() map[string]any {
	fields := make(map[string]any, len(f.fields))
	for k, v := range f.fields {
		fields[k] = ir.ToGo(v)
	}
	return map[string]any{
		"type":         f.ref.Type,
		"hash":         f.ref.Hash,
		"fields":       fields,
		"predecessors": EncodePredecessors(f.predecessors),
	}
}

// EncodePredecessors converts predecessors into plain Go values.
func EncodePredecessors(predecessors []Predecessor) map[string]any {
	out := make(map[string]any, len(predecessors))
	for _, p := range predecessors {
		if p.multiple {
			list := make([]any, len(p.references))
			for i, r := range p.references {
				list[i] = encodeReference(r)
			}
			out[p.role] = list
			continue
		}
		out[p.role] = encodeReference(p.references[0])
	}
	return out
}

func encodeReference(r Reference) map[string]any {
	return map[string]any{"type": r.Type, "hash": r.Hash}
}

// Decode parses the Encode form. When a hash is present the content must hash
// to it (*IntegrityError otherwise); when absent the hash is computed.
func Decode(m map[string]any) (Fact, error) {
	factType, _ := m["type"].(string)
	hash, _ := m["hash"].(string)

	fields, err := DecodeFields(m["fields"])
	if err != nil {
		return Fact{}, err
	}
	preds, err := DecodePredecessors(m["predecessors"])
	if err != nil {
		return Fact{}, err
	}

	if hash == "" {
		return New(factType, fields, preds...)
	}
	return Restore(Reference{Type: factType, Hash: hash}, fields, preds)
}

// DecodeFields parses a field map from plain Go values.
func DecodeFields(v any) (Fields, error) {
	if v == nil {
		return Fields{}, nil
	}
	raw, err := stringMap(v)
	if err != nil {
		return nil, &ValidationError{Field: "fields", Message: err.Error()}
	}
	fields := make(Fields, len(raw))
	for name, value := range raw {
		scalar, err := ir.ToScalar(value)
		if err != nil {
			return nil, &ValidationError{Field: "fields." + name, Message: err.Error()}
		}
		fields[name] = scalar
	}
	return fields, nil
}

// DecodePredecessors parses a role map from plain Go values. Roles are
// returned in canonical order; a list value is a Multiple predecessor.
func DecodePredecessors(v any) ([]Predecessor, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := stringMap(v)
	if err != nil {
		return nil, &ValidationError{Field: "predecessors", Message: err.Error()}
	}

	roles := make([]string, 0, len(raw))
	for role := range raw {
		roles = append(roles, role)
	}
	ir.SortKeys(roles)

	preds := make([]Predecessor, 0, len(roles))
	for _, role := range roles {
		switch value := raw[role].(type) {
		case []any:
			refs := make([]Reference, len(value))
			for i, item := range value {
				r, err := DecodeReference(item)
				if err != nil {
					return nil, &ValidationError{Field: fmt.Sprintf("predecessors.%s[%d]", role, i), Message: err.Error()}
				}
				refs[i] = r
			}
			preds = append(preds, Multiple(role, refs...))
		default:
			r, err := DecodeReference(value)
			if err != nil {
				return nil, &ValidationError{Field: "predecessors." + role, Message: err.Error()}
			}
			preds = append(preds, Single(role, r))
		}
	}
	return slices.Clip(preds), nil
}

// DecodeReference parses {"type": ..., "hash": ...}.
func DecodeReference(v any) (Reference, error) {
	m, err := stringMap(v)
	if err != nil {
		return Reference{}, err
	}
	t, _ := m["type"].(string)
	h, _ := m["hash"].(string)
	r := Reference{Type: t, Hash: h}
	if err := r.Validate(); err != nil {
		return Reference{}, err
	}
	return r, nil
}

// stringMap accepts both map[string]any and the map[any]any some decoders produce.
func stringMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			out[key] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a mapping, got %T", v)
	}
}
