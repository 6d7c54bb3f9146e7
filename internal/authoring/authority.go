// Package authoring is the write path into a published fact graph.
//
// An Authority owns a graph.Head. Local authoring (Fact, Facts) checks
// authorization rules, signs with the principal's key and merges. Remote
// facts (Receive) are verified against their signatures and authorized with
// the signers as principals. Either way the new facts are saved to the store
// before they are published, so a reader of the head never sees a fact the
// store could lose.
package authoring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/factsync/internal/authorization"
	"github.com/roach88/factsync/internal/engine"
	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/signing"
	"github.com/roach88/factsync/internal/spec"
)

// Store persists authored facts. *store.Store implements it.
type Store interface {
	Save(ctx context.Context, g *graph.Graph) error
}

// Authority serializes writes into a head under one rule set.
type Authority struct {
	head   *graph.Head
	rules  *authorization.Rules
	store  Store
	logger *slog.Logger
}

// Option configures an Authority.
type Option func(*Authority)

// WithStore persists every accepted fact before publishing it.
func WithStore(s Store) Option {
	return func(a *Authority) {
		a.store = s
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Authority) {
		a.logger = l
	}
}

// New returns an authority writing to head. A nil head starts empty.
func New(head *graph.Head, rules *authorization.Rules, opts ...Option) *Authority {
	if head == nil {
		head = graph.NewHead(nil)
	}
	if rules == nil {
		rules = authorization.NewRules()
	}
	a := &Authority{head: head, rules: rules, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Head returns the published graph.
func (a *Authority) Head() *graph.Head {
	return a.head
}

// Rules returns the authorization rules.
func (a *Authority) Rules() *authorization.Rules {
	return a.rules
}

// Fact authors f as principal.
//
// The fact is added to a snapshot tentatively (missing predecessors fail with
// *graph.DanglingPredecessorError) and authorized there. A denial returns
// *authorization.DeniedError and nothing is signed, saved or published.
// Otherwise the fact is signed when the principal holds a key, its
// predecessor closure is saved, and the head is updated.
func (a *Authority) Fact(ctx context.Context, f fact.Fact, principal *signing.Principal) (fact.Reference, error) {
	if err := f.Verify(); err != nil {
		return fact.Reference{}, err
	}
	if err := ctx.Err(); err != nil {
		return fact.Reference{}, err
	}
	ref := f.Reference()

	tentative, err := a.head.Load().AddFact(f)
	if err != nil {
		return fact.Reference{}, fmt.Errorf("author %s: %w", ref, err)
	}

	var principals []*signing.Principal
	if principal != nil {
		principals = append(principals, principal)
	}
	if err := a.rules.Check(ctx, tentative, ref, principals...); err != nil {
		a.logger.Info("authoring denied", "fact", ref.String(), "error", err)
		return fact.Reference{}, err
	}

	env := graph.Envelope{Fact: f}
	if principal.CanSign() {
		sig, err := principal.Sign(f)
		if err != nil {
			return fact.Reference{}, fmt.Errorf("author %s: %w", ref, err)
		}
		env.Signatures = append(env.Signatures, sig)
	}

	signed, err := tentative.Add(env)
	if err != nil {
		return fact.Reference{}, fmt.Errorf("author %s: %w", ref, err)
	}
	if err := a.commit(ctx, signed, ref); err != nil {
		return fact.Reference{}, err
	}

	a.logger.Debug("fact authored", "fact", ref.String(), "signatures", len(env.Signatures))
	return ref, nil
}

// Facts authors each fact in order, stopping at the first error. The
// references of facts authored before the error are returned with it.
func (a *Authority) Facts(ctx context.Context, principal *signing.Principal, facts ...fact.Fact) ([]fact.Reference, error) {
	refs := make([]fact.Reference, 0, len(facts))
	for _, f := range facts {
		ref, err := a.Fact(ctx, f, principal)
		if err != nil {
			return refs, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Query evaluates s against the current head.
func (a *Authority) Query(ctx context.Context, s spec.Specification, givens ...fact.Reference) ([]engine.Result, error) {
	return engine.Evaluate(ctx, a.head.Load(), s, givens)
}

// commit saves the closure of refs from g and publishes it. Publishing uses
// Union so that concurrent writers do not lose each other's facts.
func (a *Authority) commit(ctx context.Context, g *graph.Graph, refs ...fact.Reference) error {
	if len(refs) == 0 {
		return nil
	}
	delta, err := g.Closure(refs...)
	if err != nil {
		return err
	}
	if a.store != nil {
		if err := a.store.Save(ctx, delta); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
	}
	_, err = a.head.Update(func(current *graph.Graph) (*graph.Graph, error) {
		return current.Union(delta), nil
	})
	return err
}
