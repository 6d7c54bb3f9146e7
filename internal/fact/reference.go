package fact

import (
	"cmp"
	"fmt"
	"strings"
)

// Reference identifies a fact by type and content hash.
// Two references are equal iff both fields match; Reference is comparable
// and usable as a map key.
type Reference struct {
	Type string `json:"type" yaml:"type" cbor:"type"`
	Hash string `json:"hash" yaml:"hash" cbor:"hash"`
}

// String renders the reference as "type:hash".
func (r Reference) String() string {
	return r.Type + ":" + r.Hash
}

// IsZero reports whether the reference is unset.
func (r Reference) IsZero() bool {
	return r.Type == "" && r.Hash == ""
}

// Validate checks that both parts are present.
func (r Reference) Validate() error {
	if r.Type == "" {
		return &ValidationError{Field: "type", Message: "reference type is required"}
	}
	if r.Hash == "" {
		return &ValidationError{Field: "hash", Message: fmt.Sprintf("reference hash is required for type %q", r.Type)}
	}
	return nil
}

// ParseReference parses the "type:hash" form produced by String.
// The hash is everything after the last colon since base64 never contains one.
func ParseReference(s string) (Reference, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return Reference{}, fmt.Errorf("invalid fact reference %q: want type:hash", s)
	}
	return Reference{Type: s[:i], Hash: s[i+1:]}, nil
}

// CompareReferences orders references by type, then hash.
func CompareReferences(a, b Reference) int {
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return cmp.Compare(a.Hash, b.Hash)
}
