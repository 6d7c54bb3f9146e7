package fact

import (
	"crypto/sha512"
	"encoding/base64"
	"fmt"

	"github.com/roach88/factsync/internal/ir"
)

// Fields maps field names to scalar values.
type Fields map[string]ir.IRScalar

// Canonicalize renders fields and predecessors as the canonical string that
// is hashed and signed. It is pure and deterministic: field insertion order
// and predecessor declaration order do not affect the output, while the order
// of references inside a Multiple predecessor does.
func Canonicalize(fields Fields, predecessors []Predecessor) (string, error) {
	fieldsObj := make(ir.IRObject, len(fields))
	for name, value := range fields {
		if value == nil {
			fieldsObj[name] = ir.IRNull{}
			continue
		}
		fieldsObj[name] = value
	}

	predsObj := make(ir.IRObject, len(predecessors))
	for _, p := range predecessors {
		if p.multiple {
			arr := make(ir.IRArray, len(p.references))
			for i, r := range p.references {
				arr[i] = referenceObject(r)
			}
			predsObj[p.role] = arr
			continue
		}
		if len(p.references) != 1 {
			return "", &ValidationError{Field: "predecessors." + p.role, Message: "single predecessor needs exactly one reference"}
		}
		predsObj[p.role] = referenceObject(p.references[0])
	}

	canonical, err := ir.MarshalCanonical(ir.IRObject{
		"fields":       fieldsObj,
		"predecessors": predsObj,
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	return string(canonical), nil
}

func referenceObject(r Reference) ir.IRObject {
	return ir.IRObject{
		"hash": ir.IRString(r.Hash),
		"type": ir.IRString(r.Type),
	}
}

// Digest computes the raw SHA-512 digest of the canonical form followed by
// the fact type name. Signatures are made over these bytes.
func Digest(factType string, fields Fields, predecessors []Predecessor) ([]byte, error) {
	canonical, err := Canonicalize(fields, predecessors)
	if err != nil {
		return nil, err
	}
	h := sha512.New()
	h.Write([]byte(canonical))
	h.Write([]byte(factType))
	return h.Sum(nil), nil
}

// ComputeHash returns the base64-encoded fact hash that becomes Reference.Hash.
func ComputeHash(factType string, fields Fields, predecessors []Predecessor) (string, error) {
	digest, err := Digest(factType, fields, predecessors)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(digest), nil
}
