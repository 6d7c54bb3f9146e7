// Package distribution decides which matched facts a principal may receive.
//
// A rule pairs a specification with an optional user specification. A nil
// user specification shares the results with everyone. Otherwise the user
// specification is run from the same givens as the matched row, and the
// principal must appear under the rule's user role. Rules apply to the
// specifications whose Hash equals theirs.
//
// Denial is not an error: denied rows are simply left out.
package distribution

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/factsync/internal/engine"
	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/signing"
	"github.com/roach88/factsync/internal/spec"
)

// Rule shares the results of Specification with the principals selected by
// UserSpecification.
type Rule struct {
	Specification     spec.Specification
	UserSpecification *spec.Specification
	UserRole          string
}

// Everyone reports whether the rule shares with every principal.
func (r Rule) Everyone() bool {
	return r.UserSpecification == nil
}

// Rules is an ordered set of distribution rules.
type Rules struct {
	rules []Rule
}

// NewRules returns an empty registry. Nothing is distributed until a rule
// is added.
func NewRules() *Rules {
	return &Rules{}
}

// Add registers rule. A user specification must take givens of the same
// types, in the same order, as the shared specification and must project
// the user role.
func (r *Rules) Add(rule Rule) error {
	if rule.UserSpecification != nil {
		us := *rule.UserSpecification
		if !slices.Equal(us.GivenTypes(), rule.Specification.GivenTypes()) {
			return fmt.Errorf("distribution rule: user specification givens %v do not match %v",
				us.GivenTypes(), rule.Specification.GivenTypes())
		}
		found := false
		for _, c := range us.Components() {
			if c.ComponentName() == rule.UserRole {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("distribution rule: user specification does not project %q", rule.UserRole)
		}
	}
	r.rules = append(r.rules, rule)
	return nil
}

// Share distributes s to everyone and returns r for chaining.
func (r *Rules) Share(s spec.Specification) *Rules {
	return r.must(Rule{Specification: s})
}

// ShareWith distributes s to principals found under role in userSpec and
// returns r for chaining. It panics on an invalid rule.
func (r *Rules) ShareWith(s, userSpec spec.Specification, role string) *Rules {
	return r.must(Rule{Specification: s, UserSpecification: &userSpec, UserRole: role})
}

func (r *Rules) must(rule Rule) *Rules {
	if err := r.Add(rule); err != nil {
		panic(err)
	}
	return r
}

// All returns every rule in registration order.
func (r *Rules) All() []Rule {
	return slices.Clone(r.rules)
}

// Applicable returns the rules registered for a specification with the
// same hash as s.
func (r *Rules) Applicable(s spec.Specification) []Rule {
	h := s.Hash()
	var out []Rule
	for _, rule := range r.rules {
		if rule.Specification.Hash() == h {
			out = append(out, rule)
		}
	}
	return out
}

// MayDistribute reports whether principal may receive result under rule.
// The user specification is anchored at the givens of result, taken
// positionally from the rule's specification.
func MayDistribute(ctx context.Context, g *graph.Graph, result engine.Result, rule Rule, principal *signing.Principal) (bool, error) {
	if rule.Everyone() {
		return true, nil
	}
	if principal == nil {
		return false, nil
	}

	givens := make([]fact.Reference, len(rule.Specification.Given))
	for i, label := range rule.Specification.Given {
		ref, ok := result.Tuple.Reference(label.Name)
		if !ok {
			return false, fmt.Errorf("distribution: result has no given %q", label.Name)
		}
		givens[i] = ref
	}

	products, err := engine.Products(ctx, g, *rule.UserSpecification, givens)
	if err != nil {
		return false, fmt.Errorf("distribution: user specification: %w", err)
	}
	user := principal.Reference()
	for _, p := range products {
		e, ok := p.Get(rule.UserRole)
		if ok && slices.Contains(e.References(), user) {
			return true, nil
		}
	}
	return false, nil
}

// Results evaluates s and keeps the results some applicable rule lets
// principal receive.
func (r *Rules) Results(ctx context.Context, g *graph.Graph, s spec.Specification, givens []fact.Reference, principal *signing.Principal) ([]engine.Result, error) {
	rules := r.Applicable(s)
	if len(rules) == 0 {
		slog.Debug("distribution denied: no rule for specification", "specification", s.Hash())
		return nil, nil
	}

	results, err := engine.Evaluate(ctx, g, s, givens)
	if err != nil {
		return nil, err
	}

	var kept []engine.Result
	denied := 0
	for _, result := range results {
		allowed := false
		for _, rule := range rules {
			ok, err := MayDistribute(ctx, g, result, rule, principal)
			if err != nil {
				return nil, err
			}
			if ok {
				allowed = true
				break
			}
		}
		if allowed {
			kept = append(kept, result)
		} else {
			denied++
		}
	}
	if denied > 0 {
		slog.Debug("distribution denied rows",
			"specification", s.Hash(),
			"denied", denied,
			"kept", len(kept),
		)
	}
	return kept, nil
}

// Filter returns the predecessor-closed subgraph of every fact in the
// results principal may receive: the matched tuple and the projection.
// With no applicable rule the result is empty.
func (r *Rules) Filter(ctx context.Context, g *graph.Graph, s spec.Specification, givens []fact.Reference, principal *signing.Principal) (*graph.Graph, error) {
	results, err := r.Results(ctx, g, s, givens, principal)
	if err != nil {
		return nil, err
	}
	var refs []fact.Reference
	for _, result := range results {
		refs = append(refs, result.Tuple.GetFactReferences()...)
		refs = append(refs, result.Projection.GetFactReferences()...)
	}
	return g.Closure(refs...)
}
