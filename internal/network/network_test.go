package network

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factsync/internal/authoring"
	"github.com/roach88/factsync/internal/authorization"
	"github.com/roach88/factsync/internal/distribution"
	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/ir"
	"github.com/roach88/factsync/internal/signing"
	"github.com/roach88/factsync/internal/spec"
)

var discardLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func environments() spec.Specification {
	return spec.New().
		Given(spec.L("org", "Organization")).
		Match(spec.M(spec.L("env", "Environment"), spec.Successor("org", spec.R("organization", "Organization")))).
		Project(spec.Fact("environment", "env")).
		MustBuild()
}

func creators() spec.Specification {
	return spec.New().
		Given(spec.L("org", "Organization")).
		Match(
			spec.M(spec.L("env", "Environment"), spec.Successor("org", spec.R("organization", "Organization"))),
			spec.M(spec.L("creator", signing.UserType), spec.Predecessor("env", spec.R("creator", signing.UserType))),
		).
		Project(spec.Fact("creator", "creator")).
		MustBuild()
}

func permissive() *authorization.Rules {
	return authorization.NewRules().
		Any("Organization").
		Any(signing.UserType).
		Any("Environment")
}

type fixture struct {
	server            *authoring.Authority
	org               fact.Fact
	alice, bob, carol *signing.Principal
	envA, envB        fact.Fact
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		server: authoring.New(nil, permissive(), authoring.WithLogger(discardLog)),
		alice:  signing.NewPrincipal("alice-key"),
		bob:    signing.NewPrincipal("bob-key"),
		carol:  signing.NewPrincipal("carol-key"),
	}
	f.org = fact.MustNew("Organization", fact.Fields{"name": ir.IRString("acme")})
	f.envA = f.environment("a", f.alice)
	f.envB = f.environment("b", f.bob)

	_, err := f.server.Facts(context.Background(), nil,
		f.org, f.alice.UserFact(), f.bob.UserFact(), f.carol.UserFact(), f.envA, f.envB)
	require.NoError(t, err)
	return f
}

func (f *fixture) environment(identifier string, creator *signing.Principal) fact.Fact {
	return fact.MustNew("Environment", fact.Fields{"identifier": ir.IRString(identifier)},
		fact.Single("organization", f.org.Reference()),
		fact.Single("creator", creator.Reference()))
}

func (f *fixture) loopback(rules *distribution.Rules, principal *signing.Principal, opts ...LoopbackOption) *Loopback {
	opts = append([]LoopbackOption{WithLoopbackLogger(discardLog)}, opts...)
	return NewLoopback(f.server, rules, principal, opts...)
}

func TestFeedID(t *testing.T) {
	org := fact.MustNew("Organization", fact.Fields{"name": ir.IRString("acme")})
	other := fact.MustNew("Organization", fact.Fields{"name": ir.IRString("other")})

	id := FeedID(environments(), []fact.Reference{org.Reference()})
	assert.Len(t, id, 43, "32 bytes, unpadded base64url")
	assert.NotContains(t, id, "+")
	assert.NotContains(t, id, "/")
	assert.Equal(t, id, FeedID(environments(), []fact.Reference{org.Reference()}))
	assert.NotEqual(t, id, FeedID(environments(), []fact.Reference{other.Reference()}))
	assert.NotEqual(t, id, FeedID(creators(), []fact.Reference{org.Reference()}))
}

func TestFetchFeed_Pages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lb := f.loopback(distribution.NewRules().Share(environments()), nil, WithPageSize(2))

	feeds, err := lb.Feeds(ctx, environments(), []fact.Reference{f.org.Reference()})
	require.NoError(t, err)
	require.Len(t, feeds, 1)

	tests := []struct {
		bookmark string
		refs     []fact.Reference
		next     string
	}{
		{"", []fact.Reference{f.org.Reference(), f.alice.Reference()}, "2"},
		{"2", []fact.Reference{f.bob.Reference(), f.envA.Reference()}, "5"},
		{"5", []fact.Reference{f.envB.Reference()}, "6"},
		{"6", nil, "6"},
	}
	for _, tt := range tests {
		t.Run("after "+tt.bookmark, func(t *testing.T) {
			resp, err := lb.FetchFeed(ctx, feeds[0], tt.bookmark)
			require.NoError(t, err)
			assert.Equal(t, tt.refs, resp.References)
			assert.Equal(t, tt.next, resp.Bookmark)
			assert.Equal(t, len(tt.refs) == 0, resp.CaughtUp())
		})
	}
}

func TestFetchFeed_NoRuleIsDone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lb := f.loopback(distribution.NewRules(), f.alice)

	feeds, err := lb.Feeds(ctx, environments(), []fact.Reference{f.org.Reference()})
	require.NoError(t, err)

	resp, err := lb.FetchFeed(ctx, feeds[0], "")
	require.NoError(t, err)
	assert.Empty(t, resp.References)
	assert.Equal(t, BookmarkDone, resp.Bookmark)
}

func TestFetchFeed_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lb := f.loopback(distribution.NewRules().Share(environments()), nil)

	_, err := lb.FetchFeed(ctx, "nope", "")
	assert.True(t, errors.Is(err, ErrUnknownFeed))

	feeds, err := lb.Feeds(ctx, environments(), []fact.Reference{f.org.Reference()})
	require.NoError(t, err)
	_, err = lb.FetchFeed(ctx, feeds[0], "-3")
	assert.Error(t, err)

	_, err = lb.Feeds(ctx, environments(), nil)
	assert.Error(t, err, "given arity")
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lb := f.loopback(nil, nil)

	g, err := lb.Load(ctx, []fact.Reference{f.envA.Reference()})
	require.NoError(t, err)
	assert.Equal(t, []fact.Reference{f.org.Reference(), f.alice.Reference(), f.envA.Reference()}, g.TopologicalOrder())

	_, err = lb.Load(ctx, []fact.Reference{signing.NewPrincipal("nobody").Reference()})
	assert.True(t, graph.IsNotFound(err))
}

func TestSubscriber_FetchIsIncremental(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lb := f.loopback(distribution.NewRules().Share(environments()), nil, WithPageSize(2))

	local := authoring.New(nil, permissive(), authoring.WithLogger(discardLog))
	sub := NewSubscriber(lb, local, discardLog)

	receipt, err := sub.Fetch(ctx, environments(), f.org.Reference())
	require.NoError(t, err)
	assert.Len(t, receipt.Accepted, 5)
	assert.Empty(t, receipt.Rejected)
	assert.False(t, local.Head().Load().Contains(f.carol.Reference()), "carol is not reachable from any environment")

	results, err := local.Query(ctx, environments(), f.org.Reference())
	require.NoError(t, err)
	assert.Len(t, results, 2)

	receipt, err = sub.Fetch(ctx, environments(), f.org.Reference())
	require.NoError(t, err)
	assert.Empty(t, receipt.Accepted)

	envC := f.environment("c", f.carol)
	_, err = f.server.Fact(ctx, envC, nil)
	require.NoError(t, err)

	receipt, err = sub.Fetch(ctx, environments(), f.org.Reference())
	require.NoError(t, err)
	assert.Equal(t, []fact.Reference{f.carol.Reference(), envC.Reference()}, receipt.Accepted)
	assert.Equal(t, "7", sub.Bookmark(FeedID(environments(), []fact.Reference{f.org.Reference()})))
}

func TestSubscriber_DistributionLimitsPrincipal(t *testing.T) {
	ctx := context.Background()
	rules := func() *distribution.Rules {
		return distribution.NewRules().ShareWith(environments(), creators(), "creator")
	}

	tests := []struct {
		name      string
		principal func(*fixture) *signing.Principal
		accepted  int
	}{
		{"creator sees every environment", func(f *fixture) *signing.Principal { return f.alice }, 5},
		{"non-creator sees nothing", func(f *fixture) *signing.Principal { return f.carol }, 0},
		{"anonymous sees nothing", func(*fixture) *signing.Principal { return nil }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			lb := f.loopback(rules(), tt.principal(f))
			local := authoring.New(nil, permissive(), authoring.WithLogger(discardLog))

			receipt, err := NewSubscriber(lb, local, discardLog).Fetch(ctx, environments(), f.org.Reference())
			require.NoError(t, err)
			assert.Len(t, receipt.Accepted, tt.accepted)
		})
	}
}

func TestSubscriber_Push(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lb := f.loopback(nil, nil)

	local := authoring.New(nil, permissive(), authoring.WithLogger(discardLog))
	dave := signing.NewPrincipal("dave-key")
	envD := f.environment("d", dave)
	_, err := local.Facts(ctx, nil, f.org, dave.UserFact(), envD)
	require.NoError(t, err)

	require.NoError(t, NewSubscriber(lb, local, discardLog).Push(ctx, envD.Reference()))
	assert.True(t, f.server.Head().Load().Contains(envD.Reference()))
	assert.True(t, f.server.Head().Load().Contains(dave.Reference()))
}

func TestStreamFeed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lb := f.loopback(distribution.NewRules().Share(environments()), nil, WithIDGenerator(NewFixedGenerator("sub-1")))

	feeds, err := lb.Feeds(ctx, environments(), []fact.Reference{f.org.Reference()})
	require.NoError(t, err)

	responses := make(chan FeedResponse, 8)
	sub, err := lb.StreamFeed(ctx, feeds[0], "", func(r FeedResponse) { responses <- r }, func(err error) {
		t.Errorf("unexpected stream error: %v", err)
	})
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID())

	first := receive(t, responses)
	assert.Len(t, first.References, 5)
	assert.Equal(t, "6", first.Bookmark)

	envC := f.environment("c", f.alice)
	_, err = f.server.Fact(ctx, envC, nil)
	require.NoError(t, err)

	second := receive(t, responses)
	assert.Equal(t, []fact.Reference{envC.Reference()}, second.References)

	sub.Close()
	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription still running after Close")
	}

	_, err = lb.StreamFeed(ctx, "nope", "", nil, nil)
	assert.True(t, errors.Is(err, ErrUnknownFeed))
}

func receive(t *testing.T, ch <-chan FeedResponse) FeedResponse {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for feed response")
		return FeedResponse{}
	}
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('7'), a[14], "version nibble")
}
