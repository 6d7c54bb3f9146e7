package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/ir"
	"github.com/roach88/factsync/internal/signing"
)

// EnvelopeRecord is the CBOR shape of one envelope.
type EnvelopeRecord struct {
	Type         string                  `cbor:"type"`
	Hash         string                  `cbor:"hash"`
	Fields       map[string]any          `cbor:"fields"`
	Predecessors map[string]any          `cbor:"predecessors"`
	Signatures   []signing.FactSignature `cbor:"signatures,omitempty"`
}

// MarshalFields encodes a field map.
func MarshalFields(fields fact.Fields) ([]byte, error) {
	m := make(map[string]any, len(fields))
	for k, v := range fields {
		m[k] = ir.ToGo(v)
	}
	return Marshal(m)
}

// UnmarshalFields decodes a field map.
func UnmarshalFields(data []byte) (fact.Fields, error) {
	var m map[string]any
	if err := Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fact.DecodeFields(m)
}

// MarshalPredecessors encodes predecessors as a role map.
func MarshalPredecessors(preds []fact.Predecessor) ([]byte, error) {
	return Marshal(fact.EncodePredecessors(preds))
}

// UnmarshalPredecessors decodes a role map.
func UnmarshalPredecessors(data []byte) ([]fact.Predecessor, error) {
	var m map[string]any
	if err := Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode predecessors: %w", err)
	}
	return fact.DecodePredecessors(m)
}

// NewEnvelopeRecord converts an envelope.
func NewEnvelopeRecord(env graph.Envelope) EnvelopeRecord {
	encoded := env.Fact.Encode()
	return EnvelopeRecord{
		Type:         env.Fact.Type(),
		Hash:         env.Fact.Reference().Hash,
		Fields:       encoded["fields"].(map[string]any),
		Predecessors: encoded["predecessors"].(map[string]any),
		Signatures:   env.Signatures,
	}
}

// Envelope converts the record back without checking the hash; callers
// that cross a trust boundary must verify the fact.
func (r EnvelopeRecord) Envelope() (graph.Envelope, error) {
	fields, err := fact.DecodeFields(r.Fields)
	if err != nil {
		return graph.Envelope{}, err
	}
	preds, err := fact.DecodePredecessors(r.Predecessors)
	if err != nil {
		return graph.Envelope{}, err
	}
	ref := fact.Reference{Type: r.Type, Hash: r.Hash}
	if err := ref.Validate(); err != nil {
		return graph.Envelope{}, err
	}
	return graph.Envelope{
		Fact:       fact.Unverified(ref, fields, preds),
		Signatures: r.Signatures,
	}, nil
}

// MarshalGraph encodes g as a CBOR sequence of envelope records in
// topological order.
func MarshalGraph(w io.Writer, g *graph.Graph) error {
	enc := NewEncoder(w)
	for env := range g.All() {
		if err := enc.Encode(NewEnvelopeRecord(env)); err != nil {
			return fmt.Errorf("encode %s: %w", env.Fact.Reference(), err)
		}
	}
	return nil
}

// UnmarshalGraph decodes a CBOR sequence written by MarshalGraph. Records
// must arrive predecessors first. Hashes are not verified here.
func UnmarshalGraph(r io.Reader) (*graph.Graph, error) {
	dec := NewDecoder(r)
	var envelopes []graph.Envelope
	for {
		var rec EnvelopeRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode envelope %d: %w", len(envelopes), err)
		}
		env, err := rec.Envelope()
		if err != nil {
			return nil, fmt.Errorf("decode envelope %d: %w", len(envelopes), err)
		}
		envelopes = append(envelopes, env)
	}
	return graph.FromEnvelopes(envelopes...)
}
