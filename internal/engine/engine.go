package engine

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/product"
	"github.com/roach88/factsync/internal/spec"
)

// Result is one solution of a specification.
type Result struct {
	// Tuple binds every given and unknown label of the top-level matches
	// to a Simple element.
	Tuple product.Product

	// Projection is the projected product.
	Projection product.Product
}

// Option configures an evaluation.
type Option func(*options)

type options struct {
	maxRows     int
	parallelism int
}

// WithMaxRows bounds the number of rows an evaluation may produce, nested
// collections included. Zero (the default) means unlimited.
func WithMaxRows(n int) Option {
	return func(o *options) {
		o.maxRows = n
	}
}

// WithParallelism sets how many rows Evaluate projects concurrently.
// Default: GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

type evaluator struct {
	ctx   context.Context
	g     *graph.Graph
	quota *rowQuota
}

func newEvaluator(ctx context.Context, g *graph.Graph, s spec.Specification, opts []Option) (*evaluator, options) {
	o := options{parallelism: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	return &evaluator{ctx: ctx, g: g, quota: newRowQuota(o.maxRows, s.Hash())}, o
}

// Stream lazily evaluates s against g anchored at givens. Iteration stops at
// the first error, which is yielded with a zero Result. Ranging twice over
// the same sequence re-evaluates from scratch.
func Stream(ctx context.Context, g *graph.Graph, s spec.Specification, givens []fact.Reference, opts ...Option) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		e, _ := newEvaluator(ctx, g, s, opts)
		start, err := e.bindGivens(s, givens)
		if err != nil {
			yield(Result{}, err)
			return
		}
		components := s.Components()

		var projectErr error
		_, err = e.solve(start, s.Matches, func(row product.Tuple) bool {
			projection, err := e.project(row, components)
			if err != nil {
				projectErr = err
				return false
			}
			return yield(Result{Tuple: row.Product(), Projection: projection}, nil)
		})
		if err == nil {
			err = projectErr
		}
		if err != nil {
			yield(Result{}, err)
		}
	}
}

// Evaluate materializes every result of s in row order.
func Evaluate(ctx context.Context, g *graph.Graph, s spec.Specification, givens []fact.Reference, opts ...Option) ([]Result, error) {
	e, o := newEvaluator(ctx, g, s, opts)
	start, err := e.bindGivens(s, givens)
	if err != nil {
		return nil, err
	}

	rows, err := e.collect(start, s.Matches)
	if err != nil {
		return nil, err
	}

	results, err := e.projectRows(rows, s.Components(), o.parallelism)
	if err != nil {
		return nil, err
	}

	slog.Debug("specification evaluated",
		"specification", e.quota.spec,
		"givens", len(givens),
		"results", len(results),
		"rows", e.quota.Current(),
	)
	return results, nil
}

// projectRows projects rows concurrently, keeping row order. The first
// failing row cancels the rows still projecting or waiting to start.
func (e *evaluator) projectRows(rows []product.Tuple, components []spec.Component, parallelism int) ([]Result, error) {
	results := make([]Result, len(rows))
	eg, ctx := errgroup.WithContext(e.ctx)
	eg.SetLimit(max(parallelism, 1))
	rowEval := &evaluator{ctx: ctx, g: e.g, quota: e.quota}
	for i, row := range rows {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			projection, err := rowEval.project(row, components)
			if err != nil {
				return err
			}
			results[i] = Result{Tuple: row.Product(), Projection: projection}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Products returns only the projections of Evaluate.
func Products(ctx context.Context, g *graph.Graph, s spec.Specification, givens []fact.Reference, opts ...Option) ([]product.Product, error) {
	results, err := Evaluate(ctx, g, s, givens, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]product.Product, len(results))
	for i, r := range results {
		out[i] = r.Projection
	}
	return out, nil
}

func (e *evaluator) bindGivens(s spec.Specification, givens []fact.Reference) (product.Tuple, error) {
	if len(givens) != len(s.Given) {
		return nil, &EvaluationError{
			Code:          ErrCodeGivenArity,
			Message:       fmt.Sprintf("specification takes %d givens, got %d", len(s.Given), len(givens)),
			Specification: s.Hash(),
		}
	}
	row := make(product.Tuple, 0, len(givens)+len(s.Matches))
	for i, label := range s.Given {
		ref := givens[i]
		if ref.Type != label.Type {
			return nil, &spec.TypeMismatchError{
				Context:  fmt.Sprintf("given %q", label.Name),
				Expected: label.Type,
				Actual:   ref.Type,
			}
		}
		if !e.g.Contains(ref) {
			return nil, &graph.NotFoundError{Reference: ref}
		}
		row = append(row, product.Anchor{Name: label.Name, Reference: ref})
	}
	return row, nil
}

// collect materializes the rows of matches extending start.
func (e *evaluator) collect(start product.Tuple, matches []spec.Match) ([]product.Tuple, error) {
	var rows []product.Tuple
	_, err := e.solve(start, matches, func(row product.Tuple) bool {
		rows = append(rows, row)
		return true
	})
	return rows, err
}

// solve extends row through matches depth first, calling emit for each
// complete row. It returns false when emit asked to stop.
func (e *evaluator) solve(row product.Tuple, matches []spec.Match, emit func(product.Tuple) bool) (bool, error) {
	if len(matches) == 0 {
		if err := e.quota.Check(); err != nil {
			return false, err
		}
		return emit(row), nil
	}

	m := matches[0]
	candidates, err := e.candidates(row, m)
	if err != nil {
		return false, err
	}
	for _, c := range candidates {
		if err := e.ctx.Err(); err != nil {
			return false, err
		}
		cont, err := e.solve(extend(row, m.Unknown.Name, c), matches[1:], emit)
		if err != nil || !cont {
			return cont, err
		}
	}
	return true, nil
}

// exists reports whether matches have at least one solution from row.
func (e *evaluator) exists(row product.Tuple, matches []spec.Match) (bool, error) {
	found := false
	_, err := e.solveUncounted(row, matches, func(product.Tuple) bool {
		found = true
		return false
	})
	return found, err
}

// solveUncounted is solve without the row quota, for existential checks
// whose witnesses are never emitted.
func (e *evaluator) solveUncounted(row product.Tuple, matches []spec.Match, emit func(product.Tuple) bool) (bool, error) {
	if len(matches) == 0 {
		return emit(row), nil
	}
	m := matches[0]
	candidates, err := e.candidates(row, m)
	if err != nil {
		return false, err
	}
	for _, c := range candidates {
		if err := e.ctx.Err(); err != nil {
			return false, err
		}
		cont, err := e.solveUncounted(extend(row, m.Unknown.Name, c), matches[1:], emit)
		if err != nil || !cont {
			return cont, err
		}
	}
	return true, nil
}

func extend(row product.Tuple, name string, ref fact.Reference) product.Tuple {
	next := make(product.Tuple, len(row), len(row)+1)
	copy(next, row)
	return append(next, product.Anchor{Name: name, Reference: ref})
}

// candidates generates the unknown's candidates from the first path
// condition and filters them through the rest.
func (e *evaluator) candidates(row product.Tuple, m spec.Match) ([]fact.Reference, error) {
	first, ok := m.Conditions[0].(spec.PathCondition)
	if !ok {
		return nil, fmt.Errorf("match %q: first condition must be a path condition", m.Unknown.Name)
	}
	right, err := e.rightEnds(row, first)
	if err != nil {
		return nil, err
	}
	generated := e.walkSuccessors(right, first.RolesLeft, m.Unknown.Type)

	var out []fact.Reference
	for _, c := range generated {
		keep, err := e.satisfies(extend(row, m.Unknown.Name, c), m, c)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, c)
		}
	}
	return out, nil
}

func (e *evaluator) satisfies(row product.Tuple, m spec.Match, candidate fact.Reference) (bool, error) {
	for _, cond := range m.Conditions[1:] {
		switch c := cond.(type) {
		case spec.PathCondition:
			right, err := e.rightEnds(row, c)
			if err != nil {
				return false, err
			}
			left, err := e.walkPredecessors([]fact.Reference{candidate}, c.RolesLeft)
			if err != nil {
				return false, err
			}
			if !intersects(left, right) {
				return false, nil
			}
		case spec.ExistentialCondition:
			found, err := e.exists(row, c.Matches)
			if err != nil {
				return false, err
			}
			if found != c.Exists {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unknown condition type %T", cond)
		}
	}
	return true, nil
}

func (e *evaluator) rightEnds(row product.Tuple, c spec.PathCondition) ([]fact.Reference, error) {
	start, ok := row.Get(c.LabelRight)
	if !ok {
		return nil, &spec.UnboundLabelError{Label: c.LabelRight, Context: "evaluation"}
	}
	return e.walkPredecessors([]fact.Reference{start}, c.RolesRight)
}

// walkPredecessors follows roles toward predecessors. Edges whose target
// type differs from the role's declared type are not followed.
func (e *evaluator) walkPredecessors(start []fact.Reference, roles []spec.Role) ([]fact.Reference, error) {
	current := start
	for _, r := range roles {
		var next []fact.Reference
		for _, ref := range current {
			f, err := e.g.GetFact(ref)
			if err != nil {
				return nil, err
			}
			p, ok := f.Predecessor(r.Name)
			if !ok {
				continue
			}
			for _, pred := range p.References() {
				if pred.Type == r.PredecessorType {
					next = append(next, pred)
				}
			}
		}
		current = e.ordered(next)
	}
	return current, nil
}

// walkSuccessors walks roles backwards from their far end. roles are listed
// from the unknown outward, so the last role is traversed first, and the
// fact type expected at each step is the previous role's target type (the
// unknown's type for the first role).
func (e *evaluator) walkSuccessors(start []fact.Reference, roles []spec.Role, unknownType string) []fact.Reference {
	current := start
	for i := len(roles) - 1; i >= 0; i-- {
		want := unknownType
		if i > 0 {
			want = roles[i-1].PredecessorType
		}
		var next []fact.Reference
		for _, ref := range current {
			for _, succ := range e.g.Successors(ref, roles[i].Name) {
				if succ.Type == want {
					next = append(next, succ)
				}
			}
		}
		current = e.ordered(next)
	}
	return slices.DeleteFunc(slices.Clone(current), func(r fact.Reference) bool {
		return r.Type != unknownType
	})
}

// ordered dedupes refs and sorts them by insertion sequence.
func (e *evaluator) ordered(refs []fact.Reference) []fact.Reference {
	seen := make(map[fact.Reference]bool, len(refs))
	out := refs[:0:0]
	for _, r := range refs {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b fact.Reference) int {
		sa, _ := e.g.Seq(a)
		sb, _ := e.g.Seq(b)
		return cmp.Compare(sa, sb)
	})
	return out
}

func intersects(a, b []fact.Reference) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}

// project builds the product for one row.
func (e *evaluator) project(row product.Tuple, components []spec.Component) (product.Product, error) {
	var p product.Product
	for _, c := range components {
		switch comp := c.(type) {
		case spec.FactComponent:
			ref, ok := row.Get(comp.Label)
			if !ok {
				return product.Product{}, &spec.UnboundLabelError{Label: comp.Label, Context: "projection " + comp.Name}
			}
			p = p.With(comp.Name, product.Simple{Reference: ref})
		case spec.SpecificationComponent:
			rows, err := e.collect(row, comp.Matches)
			if err != nil {
				return product.Product{}, err
			}
			nested := spec.EffectiveComponents(comp.Matches, comp.Projection)
			items := make([]product.Product, 0, len(rows))
			for _, r := range rows {
				item, err := e.project(r, nested)
				if err != nil {
					return product.Product{}, err
				}
				items = append(items, item)
			}
			p = p.With(comp.Name, product.Collection{Products: items})
		default:
			return product.Product{}, fmt.Errorf("unknown component type %T", c)
		}
	}
	return p, nil
}
