// Package authorization decides which principals may author a fact.
//
// Rules are registered per fact type. Several rules for one type are OR'ed;
// a type with no rules is denied. A specification rule runs its
// specification with the candidate fact as the only given and allows the
// principals whose user facts appear under the rule's role in the results.
package authorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/factsync/internal/engine"
	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/product"
	"github.com/roach88/factsync/internal/signing"
	"github.com/roach88/factsync/internal/spec"
)

// Rule is sealed: AnyRule, NoneRule or SpecificationRule.
type Rule interface {
	rule()
}

// AnyRule allows every principal, including none.
type AnyRule struct{}

func (AnyRule) rule() {}

// NoneRule allows nobody.
type NoneRule struct{}

func (NoneRule) rule() {}

// SpecificationRule allows principals found under Role in the projections
// of Specification evaluated from the candidate fact.
type SpecificationRule struct {
	Specification spec.Specification
	Role          string
}

func (SpecificationRule) rule() {}

// Rules maps fact types to their rules.
type Rules struct {
	byType map[string][]Rule
}

// NewRules returns an empty registry. Every type is denied until a rule
// is added for it.
func NewRules() *Rules {
	return &Rules{byType: make(map[string][]Rule)}
}

// Add registers rule for factType. Specification rules must take exactly
// one given of factType and project a component named by their role.
func (r *Rules) Add(factType string, rule Rule) error {
	if factType == "" {
		return fmt.Errorf("authorization rule: fact type is required")
	}
	switch rl := rule.(type) {
	case AnyRule, NoneRule:
	case SpecificationRule:
		if len(rl.Specification.Given) != 1 || rl.Specification.Given[0].Type != factType {
			return fmt.Errorf("authorization rule for %s: specification must take one given of type %s", factType, factType)
		}
		names := make([]string, 0)
		for _, c := range rl.Specification.Components() {
			names = append(names, c.ComponentName())
		}
		if !slices.Contains(names, rl.Role) {
			return fmt.Errorf("authorization rule for %s: specification does not project %q", factType, rl.Role)
		}
	default:
		return fmt.Errorf("authorization rule for %s: unknown rule type %T", factType, rule)
	}
	r.byType[factType] = append(r.byType[factType], rule)
	return nil
}

// Any registers an AnyRule and returns r for chaining.
func (r *Rules) Any(factType string) *Rules {
	return r.must(factType, AnyRule{})
}

// None registers a NoneRule and returns r for chaining.
func (r *Rules) None(factType string) *Rules {
	return r.must(factType, NoneRule{})
}

// Specification registers a SpecificationRule and returns r for chaining.
// It panics on an invalid rule; use Add for rules loaded at runtime.
func (r *Rules) Specification(factType string, s spec.Specification, role string) *Rules {
	return r.must(factType, SpecificationRule{Specification: s, Role: role})
}

func (r *Rules) must(factType string, rule Rule) *Rules {
	if err := r.Add(factType, rule); err != nil {
		panic(err)
	}
	return r
}

// For returns the rules registered for factType.
func (r *Rules) For(factType string) []Rule {
	return slices.Clone(r.byType[factType])
}

// Types returns the fact types that have rules, sorted.
func (r *Rules) Types() []string {
	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// DeniedError reports an authoring attempt the rules rejected. The fact is
// never merged or signed.
type DeniedError struct {
	Reference fact.Reference
	Reason    string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("authorization denied for %s: %s", e.Reference, e.Reason)
}

// IsDenied returns true if err is or wraps a DeniedError.
func IsDenied(err error) bool {
	var de *DeniedError
	return errors.As(err, &de)
}

// Authorize decides whether any of principals may author candidate. The
// candidate must already be in g, since specification rules are evaluated
// from it.
func (r *Rules) Authorize(ctx context.Context, g *graph.Graph, candidate fact.Reference, principals ...*signing.Principal) (Decision, error) {
	rules := r.byType[candidate.Type]
	if len(rules) == 0 {
		return Decision{Reason: fmt.Sprintf("no authorization rule for type %s", candidate.Type)}, nil
	}

	users := make([]fact.Reference, 0, len(principals))
	for _, p := range principals {
		if p != nil {
			users = append(users, p.Reference())
		}
	}

	for _, rule := range rules {
		switch rl := rule.(type) {
		case AnyRule:
			return Decision{Allowed: true, Reason: "any"}, nil
		case NoneRule:
			continue
		case SpecificationRule:
			if len(users) == 0 {
				continue
			}
			authorized, err := authorizedUsers(ctx, g, candidate, rl)
			if err != nil {
				return Decision{}, err
			}
			for _, u := range users {
				if slices.Contains(authorized, u) {
					return Decision{Allowed: true, Reason: fmt.Sprintf("principal bound to %s", rl.Role)}, nil
				}
			}
		}
	}

	slog.Debug("authorization denied", "fact", candidate.String(), "principals", len(users))
	if len(users) == 0 {
		return Decision{Reason: fmt.Sprintf("no principal may author %s", candidate.Type)}, nil
	}
	return Decision{Reason: fmt.Sprintf("principal is not authorized to author %s", candidate.Type)}, nil
}

// Check is Authorize returning *DeniedError on denial.
func (r *Rules) Check(ctx context.Context, g *graph.Graph, candidate fact.Reference, principals ...*signing.Principal) error {
	d, err := r.Authorize(ctx, g, candidate, principals...)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &DeniedError{Reference: candidate, Reason: d.Reason}
	}
	return nil
}

func authorizedUsers(ctx context.Context, g *graph.Graph, candidate fact.Reference, rule SpecificationRule) ([]fact.Reference, error) {
	products, err := engine.Products(ctx, g, rule.Specification, []fact.Reference{candidate})
	if err != nil {
		return nil, fmt.Errorf("authorize %s: %w", candidate, err)
	}
	var users []fact.Reference
	for _, p := range products {
		e, ok := p.Get(rule.Role)
		if !ok {
			continue
		}
		users = append(users, simpleReferences(e)...)
	}
	return users, nil
}

// simpleReferences returns the references of a Simple element, or of every
// product in a Collection.
func simpleReferences(e product.Element) []fact.Reference {
	switch v := e.(type) {
	case product.Simple:
		return []fact.Reference{v.Reference}
	case product.Collection:
		return v.References()
	default:
		return nil
	}
}
