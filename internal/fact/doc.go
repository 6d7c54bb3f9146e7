// Package fact defines facts: immutable, typed records identified by the hash
// of their canonical form.
//
// A Fact carries scalar fields and named predecessor edges. Its Reference
// (type + hash) is computed at construction and never stored separately from
// the content it identifies, so a Fact value is never observed in an
// inconsistent state.
//
// # Canonical form
//
// Canonicalize renders fields and predecessors as RFC 8785 canonical JSON:
//
//	{"fields":{...},"predecessors":{...}}
//
// Field names and predecessor roles are ordered by UTF-16 code units. A single
// predecessor renders as {"hash":"...","type":"..."}; a multiple predecessor
// renders as a JSON array of those objects in the order supplied.
//
// Every string in the canonical form must be valid UTF-8 in NFC. New
// normalizes field names and string values on the way in; Restore takes
// content as it was stored or received and fails with *IntegrityError if it
// is not already canonical.
//
// The fact hash is SHA-512 over the UTF-8 bytes of the canonical string
// immediately followed by the fact type name, encoded as standard base64 with
// padding. This routine must stay bit-exact; bump ir.CanonicalVersion on any
// change.
package fact
