package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/factsync/internal/authoring"
	"github.com/roach88/factsync/internal/authorization"
	"github.com/roach88/factsync/internal/compiler"
	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/ir"
	"github.com/roach88/factsync/internal/signing"
	"github.com/roach88/factsync/internal/store"
)

// Harness is the state of one scenario run.
type Harness struct {
	store      *store.Store
	authority  *authoring.Authority
	rules      *compiler.Compiled
	principals map[string]*signing.Principal
	refs       map[string]fact.Reference
	logger     *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database:
//  1. Compile the rules
//  2. Generate a key pair per principal and register its user fact
//  3. Author each step through the authority, checking its expectation
//  4. Evaluate assertions against the final graph
//
// An error is returned only when the scenario cannot run at all; failed
// expectations and assertions are recorded in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	rules, err := compiler.CompileDir(scenario.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:      st,
		rules:      rules,
		principals: make(map[string]*signing.Principal, len(scenario.Principals)),
		refs:       make(map[string]fact.Reference),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	if err := h.registerPrincipals(ctx, scenario.Principals); err != nil {
		return nil, fmt.Errorf("failed to register principals: %w", err)
	}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	for _, msg := range h.EvaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// registerPrincipals generates keys and seeds the store and head with each
// principal's user fact. Identity facts are not subject to authorization.
func (h *Harness) registerPrincipals(ctx context.Context, names []string) error {
	g := graph.Empty()
	for _, name := range names {
		kp, err := signing.Generate()
		if err != nil {
			return err
		}
		p, err := signing.FromKeyPair(kp)
		if err != nil {
			return err
		}
		h.principals[name] = p
		h.refs[name] = p.Reference()
		if g, err = g.AddFact(p.UserFact()); err != nil {
			return err
		}
	}
	if err := h.store.Save(ctx, g); err != nil {
		return err
	}
	h.authority = authoring.New(graph.NewHead(g), h.rules.Authorization,
		authoring.WithStore(h.store), authoring.WithLogger(h.logger))
	return nil
}

// executeSteps authors every step and records its outcome.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		f, err := h.buildFact(step)
		if err != nil {
			return fmt.Errorf("steps[%d] (%s): %w", i, step.Author, err)
		}
		h.refs[step.Author] = f.Reference()

		outcome := OutcomeAccepted
		_, err = h.authority.Fact(ctx, f, h.principals[step.As])
		switch {
		case err == nil:
		case authorization.IsDenied(err):
			outcome = OutcomeDenied
		case graph.IsDanglingPredecessor(err):
			outcome = OutcomeDangling
		default:
			return fmt.Errorf("steps[%d] (%s): %w", i, step.Author, err)
		}

		event := TraceEvent{
			Step:    i,
			Fact:    step.Author,
			Type:    step.Type,
			As:      step.As,
			Outcome: outcome,
		}
		if outcome == OutcomeAccepted {
			event.Signatures = len(h.authority.Head().Load().GetSignatures(f.Reference()))
		}
		result.AddTrace(event)

		expect := step.Expect
		if expect == "" {
			expect = OutcomeAccepted
		}
		if outcome != expect {
			result.AddError(fmt.Sprintf("steps[%d] (%s): expected %s, got %s", i, step.Author, expect, outcome))
		}
	}
	return nil
}

// buildFact converts a step into a fact, resolving predecessor labels.
func (h *Harness) buildFact(step Step) (fact.Fact, error) {
	fields := make(fact.Fields, len(step.Fields))
	for name, v := range step.Fields {
		scalar, err := ir.ToScalar(v)
		if err != nil {
			return fact.Fact{}, fmt.Errorf("field %s: %w", name, err)
		}
		fields[name] = scalar
	}

	roles := make([]string, 0, len(step.Predecessors))
	for role := range step.Predecessors {
		roles = append(roles, role)
	}
	slices.Sort(roles)

	preds := make([]fact.Predecessor, 0, len(roles))
	for _, role := range roles {
		v := step.Predecessors[role]
		refs, err := h.resolve(predecessorLabels(v))
		if err != nil {
			return fact.Fact{}, fmt.Errorf("predecessor %s: %w", role, err)
		}
		if _, single := v.(string); single {
			preds = append(preds, fact.Single(role, refs[0]))
		} else {
			preds = append(preds, fact.Multiple(role, refs...))
		}
	}
	return fact.New(step.Type, fields, preds...)
}

func (h *Harness) resolve(labels []string) ([]fact.Reference, error) {
	refs := make([]fact.Reference, len(labels))
	for i, label := range labels {
		ref, ok := h.refs[label]
		if !ok {
			return nil, fmt.Errorf("unknown label %q", label)
		}
		refs[i] = ref
	}
	return refs, nil
}

// label returns the label bound to ref, or ref itself rendered.
func (h *Harness) label(ref fact.Reference) string {
	for name, r := range h.refs {
		if r == ref {
			return name
		}
	}
	return ref.String()
}
