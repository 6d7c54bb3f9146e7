package authoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/signing"
)

// ErrBadSignature marks a received fact carrying a signature that does not
// verify against its content.
var ErrBadSignature = errors.New("signature does not verify")

// Rejection records a received fact that was not accepted.
type Rejection struct {
	Reference fact.Reference
	Err       error
}

// Receipt summarizes one Receive call.
type Receipt struct {
	// Accepted lists facts new to the local graph.
	Accepted []fact.Reference
	// Merged lists already-known facts whose signatures were merged.
	Merged []fact.Reference
	// Rejected lists facts refused by verification or authorization. Facts
	// depending on a rejected fact are rejected as dangling.
	Rejected []Rejection
}

// Receive accepts a subgraph from a peer in topological order.
//
// Every fact hash is recomputed first; any *fact.IntegrityError aborts the
// whole call with nothing merged. Per fact, every signature must verify
// (ErrBadSignature otherwise) and new facts must pass authorization with the
// signers as principals. Accepted and merged facts are saved and published
// together.
func (a *Authority) Receive(ctx context.Context, remote *graph.Graph) (Receipt, error) {
	var receipt Receipt
	if remote == nil || remote.Len() == 0 {
		return receipt, nil
	}

	for env := range remote.All() {
		if err := env.Fact.Verify(); err != nil {
			return Receipt{}, fmt.Errorf("receive: %w", err)
		}
	}

	working := a.head.Load()
	var touched []fact.Reference
	for env := range remote.All() {
		if err := ctx.Err(); err != nil {
			return Receipt{}, err
		}
		ref := env.Fact.Reference()

		principals, err := signers(env)
		if err != nil {
			receipt.Rejected = append(receipt.Rejected, Rejection{Reference: ref, Err: err})
			continue
		}

		if working.Contains(ref) {
			next, err := working.Add(env)
			if err != nil {
				receipt.Rejected = append(receipt.Rejected, Rejection{Reference: ref, Err: err})
				continue
			}
			if next != working {
				receipt.Merged = append(receipt.Merged, ref)
				touched = append(touched, ref)
			}
			working = next
			continue
		}

		next, err := working.Add(env)
		if err != nil {
			receipt.Rejected = append(receipt.Rejected, Rejection{Reference: ref, Err: err})
			continue
		}
		if err := a.rules.Check(ctx, next, ref, principals...); err != nil {
			receipt.Rejected = append(receipt.Rejected, Rejection{Reference: ref, Err: err})
			continue
		}
		working = next
		receipt.Accepted = append(receipt.Accepted, ref)
		touched = append(touched, ref)
	}

	if err := a.commit(ctx, working, touched...); err != nil {
		return Receipt{}, err
	}

	a.logger.Debug("facts received",
		"accepted", len(receipt.Accepted),
		"merged", len(receipt.Merged),
		"rejected", len(receipt.Rejected),
	)
	for _, r := range receipt.Rejected {
		a.logger.Info("received fact rejected", "fact", r.Reference.String(), "error", r.Err)
	}
	return receipt, nil
}

// signers verifies every signature of env and returns the signing principals.
func signers(env graph.Envelope) ([]*signing.Principal, error) {
	principals := make([]*signing.Principal, 0, len(env.Signatures))
	for _, sig := range env.Signatures {
		if !signing.Verify(env.Fact, sig) {
			return nil, fmt.Errorf("%s: %w", env.Fact.Reference(), ErrBadSignature)
		}
		principals = append(principals, signing.NewPrincipal(sig.PublicKey))
	}
	return principals, nil
}
