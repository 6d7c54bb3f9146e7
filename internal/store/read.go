package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/factsync/internal/codec"
	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/signing"
)

// Load returns the predecessor closure of refs as a graph, rebuilt in save
// order. A reference that was never saved yields *graph.NotFoundError.
func (s *Store) Load(ctx context.Context, refs ...fact.Reference) (*graph.Graph, error) {
	if len(refs) == 0 {
		return graph.Empty(), nil
	}

	seqs := make([]any, 0, len(refs))
	for _, ref := range refs {
		seq, found, err := lookupSeq(ctx, s.db, ref)
		if err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
		if !found {
			return nil, &graph.NotFoundError{Reference: ref}
		}
		seqs = append(seqs, seq)
	}

	roots := strings.TrimSuffix(strings.Repeat("(?),", len(seqs)), ",")
	selected := `
		WITH RECURSIVE selected(seq) AS (
			VALUES ` + roots + `
			UNION
			SELECT e.predecessor_seq FROM edges e JOIN selected s ON e.successor_seq = s.seq
		)`
	return s.read(ctx, selected, seqs)
}

// ReadAll returns every stored fact as one graph.
func (s *Store) ReadAll(ctx context.Context) (*graph.Graph, error) {
	return s.read(ctx, `WITH selected(seq) AS (SELECT seq FROM facts)`, nil)
}

// Count returns the number of stored facts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts").Scan(&n); err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return n, nil
}

// Contains reports whether ref has been saved.
func (s *Store) Contains(ctx context.Context, ref fact.Reference) (bool, error) {
	_, found, err := lookupSeq(ctx, s.db, ref)
	return found, err
}

// read materializes the facts whose seq is produced by the selected CTE.
// Deterministic ordering: ORDER BY seq ASC.
func (s *Store) read(ctx context.Context, selected string, args []any) (*graph.Graph, error) {
	sigs, err := s.readSignatures(ctx, selected, args)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, selected+`
		SELECT f.seq, f.type, f.hash, f.fields, f.predecessors
		FROM facts f
		WHERE f.seq IN (SELECT seq FROM selected)
		ORDER BY f.seq ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var envelopes []graph.Envelope
	for rows.Next() {
		var (
			seq                   int64
			ref                   fact.Reference
			fieldsCBOR, predsCBOR []byte
		)
		if err := rows.Scan(&seq, &ref.Type, &ref.Hash, &fieldsCBOR, &predsCBOR); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f, err := restore(ref, fieldsCBOR, predsCBOR)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, graph.Envelope{Fact: f, Signatures: sigs[seq]})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}

	g, err := graph.FromEnvelopes(envelopes...)
	if err != nil {
		return nil, fmt.Errorf("rebuild graph: %w", err)
	}
	return g, nil
}

func (s *Store) readSignatures(ctx context.Context, selected string, args []any) (map[int64][]signing.FactSignature, error) {
	rows, err := s.db.QueryContext(ctx, selected+`
		SELECT fact_seq, public_key, signature
		FROM signatures
		WHERE fact_seq IN (SELECT seq FROM selected)
		ORDER BY fact_seq ASC, public_key ASC, signature ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query signatures: %w", err)
	}
	defer rows.Close()

	sigs := make(map[int64][]signing.FactSignature)
	for rows.Next() {
		var (
			seq int64
			sig signing.FactSignature
		)
		if err := rows.Scan(&seq, &sig.PublicKey, &sig.Signature); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		sigs[seq] = append(sigs[seq], sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return sigs, nil
}

// restore decodes a stored row and recomputes its hash.
func restore(ref fact.Reference, fieldsCBOR, predsCBOR []byte) (fact.Fact, error) {
	fields, err := codec.UnmarshalFields(fieldsCBOR)
	if err != nil {
		return fact.Fact{}, fmt.Errorf("restore %s: %w", ref, err)
	}
	preds, err := codec.UnmarshalPredecessors(predsCBOR)
	if err != nil {
		return fact.Fact{}, fmt.Errorf("restore %s: %w", ref, err)
	}
	f, err := fact.Restore(ref, fields, preds)
	if err != nil {
		return fact.Fact{}, fmt.Errorf("restore %s: %w", ref, err)
	}
	return f, nil
}
