package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/ir"
	"github.com/roach88/factsync/internal/product"
	"github.com/roach88/factsync/internal/spec"
)

type fixture struct {
	g                *graph.Graph
	alice, bob       fact.Fact
	prod, stage, dev fact.Fact
	devDeleted       fact.Fact
	r1, r2           fact.Fact
}

var (
	userL    = spec.L("user", "Jinaga.User")
	envL     = spec.L("env", "Environment")
	releaseL = spec.L("release", "Release")
)

func user(key string) fact.Fact {
	return fact.MustNew("Jinaga.User", fact.Fields{"publicKey": ir.IRString(key)})
}

func env(creator fact.Fact, id string) fact.Fact {
	return fact.MustNew("Environment",
		fact.Fields{"identifier": ir.IRString(id)},
		fact.Single("creator", creator.Reference()))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{alice: user("alice"), bob: user("bob")}
	f.prod = env(f.alice, "prod")
	f.stage = env(f.bob, "staging")
	f.dev = env(f.alice, "dev")
	f.devDeleted = fact.MustNew("Environment.Deleted", fact.Fields{}, fact.Single("environment", f.dev.Reference()))
	f.r1 = fact.MustNew("Release", fact.Fields{"name": ir.IRString("v1")},
		fact.Single("environment", f.prod.Reference()))
	f.r2 = fact.MustNew("Release", fact.Fields{"name": ir.IRString("v2")},
		fact.Single("environment", f.prod.Reference()),
		fact.Multiple("prior", f.r1.Reference()))

	f.g = f.build(t, f.alice, f.bob, f.prod, f.stage, f.dev, f.devDeleted, f.r1, f.r2)
	return f
}

func (f *fixture) build(t *testing.T, facts ...fact.Fact) *graph.Graph {
	t.Helper()
	g := graph.Empty()
	for _, x := range facts {
		var err error
		g, err = g.AddFact(x)
		require.NoError(t, err)
	}
	return g
}

func creatorSpec() spec.Specification {
	return spec.New().
		Given(envL).
		Match(spec.M(spec.L("creator", "Jinaga.User"), spec.Predecessor("env", spec.R("creator", "Jinaga.User")))).
		Project(spec.Fact("creator", "creator")).
		MustBuild()
}

func environmentsOf(conditions ...spec.Condition) spec.Specification {
	conds := append([]spec.Condition{spec.Successor("user", spec.R("creator", "Jinaga.User"))}, conditions...)
	return spec.New().
		Given(userL).
		Match(spec.M(envL, conds...)).
		Project(spec.Fact("environment", "env")).
		MustBuild()
}

func refs(t *testing.T, results []Result, name string) []fact.Reference {
	t.Helper()
	out := make([]fact.Reference, 0, len(results))
	for _, r := range results {
		ref, ok := r.Projection.Reference(name)
		require.True(t, ok, "projection %s missing", name)
		out = append(out, ref)
	}
	return out
}

func TestEvaluatePredecessor(t *testing.T) {
	f := newFixture(t)

	results, err := Evaluate(context.Background(), f.g, creatorSpec(), []fact.Reference{f.prod.Reference()})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, []fact.Reference{f.alice.Reference()}, refs(t, results, "creator"))
	assert.True(t, results[0].Tuple.Equal(product.New(
		product.Binding{Name: "env", Element: product.Simple{Reference: f.prod.Reference()}},
		product.Binding{Name: "creator", Element: product.Simple{Reference: f.alice.Reference()}},
	)))
}

func TestEvaluateSuccessorsInInsertionOrder(t *testing.T) {
	f := newFixture(t)

	results, err := Evaluate(context.Background(), f.g, environmentsOf(), []fact.Reference{f.alice.Reference()})
	require.NoError(t, err)
	assert.Equal(t, []fact.Reference{f.prod.Reference(), f.dev.Reference()}, refs(t, results, "environment"))
}

func TestNoConditionPrunesRows(t *testing.T) {
	f := newFixture(t)
	s := environmentsOf(spec.WhereNotDeleted(envL, "Environment.Deleted", "environment"))
	given := []fact.Reference{f.alice.Reference()}

	before := f.build(t, f.alice, f.bob, f.prod, f.dev)
	results, err := Evaluate(context.Background(), before, s, given)
	require.NoError(t, err)
	assert.Equal(t, []fact.Reference{f.prod.Reference(), f.dev.Reference()}, refs(t, results, "environment"))

	after, err := before.AddFact(f.devDeleted)
	require.NoError(t, err)
	results, err = Evaluate(context.Background(), after, s, given)
	require.NoError(t, err)
	assert.Equal(t, []fact.Reference{f.prod.Reference()}, refs(t, results, "environment"))

	// The earlier snapshot is unaffected
	results, err = Evaluate(context.Background(), before, s, given)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestAnyCondition(t *testing.T) {
	f := newFixture(t)
	s := environmentsOf(spec.Any(spec.M(releaseL, spec.Successor("env", spec.R("environment", "Environment")))))

	results, err := Evaluate(context.Background(), f.g, s, []fact.Reference{f.alice.Reference()})
	require.NoError(t, err)
	assert.Equal(t, []fact.Reference{f.prod.Reference()}, refs(t, results, "environment"))
}

func TestMultiStepSuccessorPath(t *testing.T) {
	f := newFixture(t)
	s := spec.New().
		Given(userL).
		Match(spec.M(releaseL, spec.Successor("user",
			spec.R("environment", "Environment"),
			spec.R("creator", "Jinaga.User")))).
		Project(spec.Fact("release", "release")).
		MustBuild()

	results, err := Evaluate(context.Background(), f.g, s, []fact.Reference{f.alice.Reference()})
	require.NoError(t, err)
	assert.Equal(t, []fact.Reference{f.r1.Reference(), f.r2.Reference()}, refs(t, results, "release"))

	results, err = Evaluate(context.Background(), f.g, s, []fact.Reference{f.bob.Reference()})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSecondPathConditionFilters(t *testing.T) {
	f := newFixture(t)
	s := spec.New().
		Given(userL, spec.L("other", "Jinaga.User")).
		Match(spec.M(envL,
			spec.Successor("user", spec.R("creator", "Jinaga.User")),
			spec.Successor("other", spec.R("creator", "Jinaga.User")),
		)).
		MustBuild()

	results, err := Evaluate(context.Background(), f.g, s, []fact.Reference{f.alice.Reference(), f.alice.Reference()})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = Evaluate(context.Background(), f.g, s, []fact.Reference{f.alice.Reference(), f.bob.Reference()})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCollectionProjection(t *testing.T) {
	f := newFixture(t)
	s := spec.New().
		Given(userL).
		Match(spec.M(envL,
			spec.Successor("user", spec.R("creator", "Jinaga.User")),
			spec.WhereNotDeleted(envL, "Environment.Deleted", "environment"),
		)).
		Project(
			spec.Fact("environment", "env"),
			spec.Collection("releases",
				[]spec.Match{spec.M(releaseL,
					spec.Successor("env", spec.R("environment", "Environment")),
					spec.WhereCurrent(releaseL, "prior"),
				)},
				spec.Fact("release", "release"),
			),
		).
		MustBuild()

	results, err := Evaluate(context.Background(), f.g, s, []fact.Reference{f.alice.Reference()})
	require.NoError(t, err)
	require.Len(t, results, 1)

	want := product.New(
		product.Binding{Name: "environment", Element: product.Simple{Reference: f.prod.Reference()}},
		product.Binding{Name: "releases", Element: product.Collection{Products: []product.Product{
			product.New(product.Binding{Name: "release", Element: product.Simple{Reference: f.r2.Reference()}}),
		}}},
	)
	assert.True(t, want.Equal(results[0].Projection), "got %s", results[0].Projection)
	assert.Equal(t, []fact.Reference{f.prod.Reference(), f.r2.Reference()}, results[0].Projection.GetFactReferences())
}

func TestEvaluateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	s := environmentsOf()
	given := []fact.Reference{f.alice.Reference()}

	a, err := Evaluate(context.Background(), f.g, s, given)
	require.NoError(t, err)
	b, err := Evaluate(context.Background(), f.g, s, given)
	require.NoError(t, err)

	require.Len(t, b, len(a))
	for i := range a {
		assert.True(t, a[i].Projection.Equal(b[i].Projection))
		assert.True(t, a[i].Tuple.Equal(b[i].Tuple))
	}
}

func TestStreamMatchesEvaluate(t *testing.T) {
	f := newFixture(t)
	s := environmentsOf()
	given := []fact.Reference{f.alice.Reference()}

	want, err := Evaluate(context.Background(), f.g, s, given)
	require.NoError(t, err)

	seq := Stream(context.Background(), f.g, s, given)
	for range 2 {
		var got []Result
		for r, err := range seq {
			require.NoError(t, err)
			got = append(got, r)
		}
		require.Len(t, got, len(want))
		for i := range want {
			assert.True(t, want[i].Projection.Equal(got[i].Projection))
		}
	}

	count := 0
	for _, err := range seq {
		require.NoError(t, err)
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestProducts(t *testing.T) {
	f := newFixture(t)
	products, err := Products(context.Background(), f.g, creatorSpec(), []fact.Reference{f.stage.Reference()})
	require.NoError(t, err)
	require.Len(t, products, 1)
	got, _ := products[0].Reference("creator")
	assert.Equal(t, f.bob.Reference(), got)
}

func TestEvaluateErrors(t *testing.T) {
	f := newFixture(t)

	t.Run("arity", func(t *testing.T) {
		_, err := Evaluate(context.Background(), f.g, creatorSpec(), nil)
		assert.True(t, IsArityError(err))
	})

	t.Run("given not in graph", func(t *testing.T) {
		missing := env(f.bob, "missing")
		_, err := Evaluate(context.Background(), f.g, creatorSpec(), []fact.Reference{missing.Reference()})
		assert.True(t, graph.IsNotFound(err))
	})

	t.Run("given type mismatch", func(t *testing.T) {
		_, err := Evaluate(context.Background(), f.g, creatorSpec(), []fact.Reference{f.alice.Reference()})
		assert.True(t, spec.IsTypeMismatch(err))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Evaluate(ctx, f.g, environmentsOf(), []fact.Reference{f.alice.Reference()})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("row limit", func(t *testing.T) {
		_, err := Evaluate(context.Background(), f.g, environmentsOf(), []fact.Reference{f.alice.Reference()}, WithMaxRows(1))
		assert.True(t, IsRowLimitError(err))

		_, err = Evaluate(context.Background(), f.g, environmentsOf(), []fact.Reference{f.alice.Reference()}, WithMaxRows(2))
		assert.NoError(t, err)
	})

	t.Run("stream yields error", func(t *testing.T) {
		var errs []error
		for _, err := range Stream(context.Background(), f.g, creatorSpec(), nil) {
			errs = append(errs, err)
		}
		require.Len(t, errs, 1)
		assert.True(t, IsArityError(errs[0]))
	})
}

func TestParallelismDoesNotChangeOrder(t *testing.T) {
	f := newFixture(t)
	s := spec.New().
		Given(userL).
		Match(spec.M(envL, spec.Successor("user", spec.R("creator", "Jinaga.User")))).
		Project(
			spec.Fact("environment", "env"),
			spec.Collection("releases",
				[]spec.Match{spec.M(releaseL, spec.Successor("env", spec.R("environment", "Environment")))},
			),
		).
		MustBuild()

	serial, err := Evaluate(context.Background(), f.g, s, []fact.Reference{f.alice.Reference()}, WithParallelism(1))
	require.NoError(t, err)
	parallel, err := Evaluate(context.Background(), f.g, s, []fact.Reference{f.alice.Reference()}, WithParallelism(8))
	require.NoError(t, err)

	require.Len(t, parallel, len(serial))
	for i := range serial {
		assert.Equal(t, serial[i].Projection.Key(), parallel[i].Projection.Key())
	}
}

func TestFailingRowCancelsRemainingRows(t *testing.T) {
	f := newFixture(t)
	r3 := fact.MustNew("Release", fact.Fields{"name": ir.IRString("v3")},
		fact.Single("environment", f.dev.Reference()))
	g, err := f.g.AddFact(r3)
	require.NoError(t, err)

	s := spec.New().
		Given(userL).
		Match(spec.M(envL, spec.Successor("user", spec.R("creator", "Jinaga.User")))).
		Project(
			spec.Fact("environment", "env"),
			spec.Collection("releases",
				[]spec.Match{spec.M(releaseL, spec.Successor("env", spec.R("environment", "Environment")))},
			),
		).
		MustBuild()

	// Two environment rows fit; prod's two releases push the count past
	// the limit while projecting the first row.
	e, _ := newEvaluator(context.Background(), g, s, []Option{WithMaxRows(3)})
	start, err := e.bindGivens(s, []fact.Reference{f.alice.Reference()})
	require.NoError(t, err)
	rows, err := e.collect(start, s.Matches)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, err = e.projectRows(rows, s.Components(), 1)
	assert.True(t, IsRowLimitError(err))
	// The dev row never started counting its release.
	assert.Equal(t, int64(4), e.quota.Current())
}

func TestExistentialScanHonorsCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, _ := newEvaluator(ctx, f.g, environmentsOf(), nil)
	row := product.Tuple{product.Anchor{Name: "user", Reference: f.alice.Reference()}}
	_, err := e.exists(row, environmentsOf().Matches)
	assert.ErrorIs(t, err, context.Canceled)
}
