package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/factsync/internal/codec"
	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
)

// Save writes every envelope of g in one transaction.
//
// Envelopes are written in g's topological order. Facts already stored are
// left as they are (ON CONFLICT DO NOTHING); their signatures are merged.
// A predecessor that is neither in g nor already stored fails the whole save
// with *graph.DanglingPredecessorError.
func (s *Store) Save(ctx context.Context, g *graph.Graph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save: begin: %w", err)
	}
	defer tx.Rollback()

	for env := range g.All() {
		if err := saveEnvelope(ctx, tx, env); err != nil {
			return fmt.Errorf("save %s: %w", env.Fact.Reference(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save: commit: %w", err)
	}
	return nil
}

func saveEnvelope(ctx context.Context, tx *sql.Tx, env graph.Envelope) error {
	f := env.Fact
	ref := f.Reference()

	fields, err := codec.MarshalFields(f.Fields())
	if err != nil {
		return err
	}
	preds, err := codec.MarshalPredecessors(f.Predecessors())
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO facts (type, hash, fields, predecessors)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(type, hash) DO NOTHING
	`, ref.Type, ref.Hash, fields, preds)
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}

	seq, found, err := lookupSeq(ctx, tx, ref)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("fact row missing after insert")
	}

	if inserted > 0 {
		for _, p := range f.Predecessors() {
			for _, pref := range p.References() {
				if err := saveEdge(ctx, tx, f, seq, p.Role(), pref); err != nil {
					return err
				}
			}
		}
	}

	for _, sig := range env.Signatures {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO signatures (fact_seq, public_key, signature)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`, seq, sig.PublicKey, sig.Signature)
		if err != nil {
			return fmt.Errorf("insert signature: %w", err)
		}
	}
	return nil
}

func saveEdge(ctx context.Context, tx *sql.Tx, f fact.Fact, seq int64, role string, pref fact.Reference) error {
	predSeq, found, err := lookupSeq(ctx, tx, pref)
	if err != nil {
		return err
	}
	if !found {
		return &graph.DanglingPredecessorError{Fact: f.Reference(), Missing: []fact.Reference{pref}}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO edges (successor_seq, role, predecessor_seq)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, seq, role, predSeq)
	if err != nil {
		return fmt.Errorf("insert edge %s: %w", role, err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lookupSeq(ctx context.Context, q querier, ref fact.Reference) (int64, bool, error) {
	var seq int64
	err := q.QueryRowContext(ctx,
		"SELECT seq FROM facts WHERE type = ? AND hash = ?",
		ref.Type, ref.Hash,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup %s: %w", ref, err)
	}
	return seq, true, nil
}
