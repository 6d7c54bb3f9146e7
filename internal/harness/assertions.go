package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/factsync/internal/engine"
	"github.com/roach88/factsync/internal/product"
	"github.com/roach88/factsync/internal/signing"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("Assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against the current graph and
// returns a message per failure.
func (h *Harness) EvaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertQuery:
			err = h.assertQuery(ctx, a)
		case AssertDistribution:
			err = h.assertDistribution(ctx, a)
		case AssertFactCount:
			err = h.assertFactCount(ctx, a)
		case AssertSignedBy:
			err = h.assertSignedBy(a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) assertQuery(ctx context.Context, a Assertion) error {
	s, ok := h.rules.Specification(a.Specification)
	if !ok {
		return fmt.Errorf("unknown specification %q", a.Specification)
	}
	givens, err := h.resolve(a.Given)
	if err != nil {
		return err
	}
	results, err := engine.Evaluate(ctx, h.authority.Head().Load(), s, givens)
	if err != nil {
		return err
	}
	return h.checkResults(AssertQuery, a, results)
}

func (h *Harness) assertDistribution(ctx context.Context, a Assertion) error {
	s, ok := h.rules.Specification(a.Specification)
	if !ok {
		return fmt.Errorf("unknown specification %q", a.Specification)
	}
	givens, err := h.resolve(a.Given)
	if err != nil {
		return err
	}
	results, err := h.rules.Distribution.Results(ctx, h.authority.Head().Load(), s, givens, h.principals[a.Principal])
	if err != nil {
		return err
	}
	return h.checkResults(AssertDistribution, a, results)
}

// checkResults applies count and contains to evaluation results.
func (h *Harness) checkResults(kind string, a Assertion, results []engine.Result) error {
	if a.Count != nil && len(results) != *a.Count {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%s to yield %d result(s)", a.Specification, *a.Count),
			Actual:   fmt.Sprintf("%d result(s): %s", len(results), h.describe(results)),
		}
	}
	if len(a.Contains) == 0 {
		return nil
	}
	for _, r := range results {
		if h.binds(r.Projection, a.Contains) {
			return nil
		}
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("%s to contain %v", a.Specification, a.Contains),
		Actual:   h.describe(results),
	}
}

// binds reports whether p binds every component to the labelled fact.
func (h *Harness) binds(p product.Product, want map[string]string) bool {
	for component, label := range want {
		ref, ok := p.Reference(component)
		if !ok || ref != h.refs[label] {
			return false
		}
	}
	return true
}

// describe renders results with labels in place of hashes.
func (h *Harness) describe(results []engine.Result) string {
	if len(results) == 0 {
		return "none"
	}
	rows := make([]string, len(results))
	for i, r := range results {
		names := r.Projection.Names()
		parts := make([]string, 0, len(names))
		for _, name := range names {
			if ref, ok := r.Projection.Reference(name); ok {
				parts = append(parts, name+"="+h.label(ref))
			} else {
				parts = append(parts, name+"=[...]")
			}
		}
		rows[i] = "{" + strings.Join(parts, " ") + "}"
	}
	return strings.Join(rows, ", ")
}

func (h *Harness) assertFactCount(ctx context.Context, a Assertion) error {
	n, err := h.store.Count(ctx)
	if err != nil {
		return err
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertFactCount,
			Expected: fmt.Sprintf("%d fact(s) in the store", *a.Count),
			Actual:   fmt.Sprintf("%d fact(s)", n),
		}
	}
	return nil
}

func (h *Harness) assertSignedBy(a Assertion) error {
	p := h.principals[a.Principal]
	sigs := h.authority.Head().Load().GetSignatures(h.refs[a.Fact])
	if slices.ContainsFunc(sigs, func(s signing.FactSignature) bool { return s.PublicKey == p.PublicKey() }) {
		return nil
	}
	return &AssertionError{
		Type:     AssertSignedBy,
		Expected: fmt.Sprintf("%s signed by %s", a.Fact, a.Principal),
		Actual:   fmt.Sprintf("%d signature(s), none by %s", len(sigs), a.Principal),
	}
}
