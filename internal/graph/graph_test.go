package graph

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/ir"
	"github.com/roach88/factsync/internal/signing"
)

func user(name string) fact.Fact {
	return fact.MustNew("Jinaga.User", fact.Fields{"publicKey": ir.IRString(name)})
}

func environment(creator fact.Fact, identifier string) fact.Fact {
	return fact.MustNew("Environment",
		fact.Fields{"identifier": ir.IRString(identifier)},
		fact.Single("creator", creator.Reference()),
	)
}

func deleted(env fact.Fact) fact.Fact {
	return fact.MustNew("Environment.Deleted", fact.Fields{}, fact.Single("environment", env.Reference()))
}

func sig(key string) signing.FactSignature {
	return signing.FactSignature{PublicKey: key, Signature: "sig-" + key}
}

func mustAdd(t *testing.T, g *Graph, facts ...fact.Fact) *Graph {
	t.Helper()
	for _, f := range facts {
		var err error
		g, err = g.AddFact(f)
		require.NoError(t, err)
	}
	return g
}

func TestEmpty(t *testing.T) {
	g := Empty()
	assert.Equal(t, 0, g.Len())
	assert.Empty(t, g.References())
	assert.False(t, g.Contains(user("a").Reference()))
}

func TestAddRequiresPredecessors(t *testing.T) {
	alice := user("alice")
	env := environment(alice, "prod")

	_, err := Empty().AddFact(env)
	require.Error(t, err)
	assert.True(t, IsDanglingPredecessor(err))

	var de *DanglingPredecessorError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, env.Reference(), de.Fact)
	assert.Equal(t, []fact.Reference{alice.Reference()}, de.Missing)

	g := mustAdd(t, Empty(), alice, env)
	assert.Equal(t, 2, g.Len())
}

func TestAddIsAllOrNothing(t *testing.T) {
	alice := user("alice")
	bob := user("bob")
	g := mustAdd(t, Empty(), alice)

	next, err := g.AddAll(
		Envelope{Fact: environment(alice, "prod")},
		Envelope{Fact: environment(bob, "prod")},
	)
	require.Error(t, err)
	assert.Same(t, g, next)
	assert.Equal(t, 1, g.Len())
}

func TestAddLeavesPriorSnapshotUnchanged(t *testing.T) {
	alice := user("alice")
	g1 := mustAdd(t, Empty(), alice)
	g2 := mustAdd(t, g1, environment(alice, "prod"))

	assert.Equal(t, 1, g1.Len())
	assert.Equal(t, 2, g2.Len())
	assert.Empty(t, g1.Successors(alice.Reference(), "creator"))
	assert.Len(t, g2.Successors(alice.Reference(), "creator"), 1)
}

func TestAddMergesSignatures(t *testing.T) {
	alice := user("alice")
	g, err := Empty().Add(Envelope{Fact: alice, Signatures: []signing.FactSignature{sig("a")}})
	require.NoError(t, err)

	g2, err := g.Add(Envelope{Fact: alice, Signatures: []signing.FactSignature{sig("a"), sig("b")}})
	require.NoError(t, err)
	assert.Equal(t, 1, g2.Len())
	assert.ElementsMatch(t, []signing.FactSignature{sig("a"), sig("b")}, g2.GetSignatures(alice.Reference()))
	assert.Equal(t, []signing.FactSignature{sig("a")}, g.GetSignatures(alice.Reference()))

	// Re-adding with nothing new returns the same snapshot
	g3, err := g2.Add(Envelope{Fact: alice, Signatures: []signing.FactSignature{sig("b")}})
	require.NoError(t, err)
	assert.Same(t, g2, g3)
}

func TestGetFact(t *testing.T) {
	alice := user("alice")
	g := mustAdd(t, Empty(), alice)

	got, err := g.GetFact(alice.Reference())
	require.NoError(t, err)
	assert.True(t, got.Equal(alice))

	_, err = g.GetFact(user("bob").Reference())
	assert.True(t, IsNotFound(err))
	assert.Nil(t, g.GetSignatures(user("bob").Reference()))
}

func TestTopologicalOrder(t *testing.T) {
	alice := user("alice")
	env := environment(alice, "prod")
	del := deleted(env)
	g := mustAdd(t, Empty(), alice, env, del)

	order := g.TopologicalOrder()
	pos := make(map[fact.Reference]int, len(order))
	for i, r := range order {
		pos[r] = i
	}
	for _, ref := range order {
		f, err := g.GetFact(ref)
		require.NoError(t, err)
		for _, pred := range f.PredecessorReferences() {
			assert.Less(t, pos[pred], pos[ref])
		}
	}

	seq, ok := g.Seq(del.Reference())
	require.True(t, ok)
	assert.Equal(t, 2, seq)
}

func unionFixtures(t *testing.T) (*Graph, *Graph, *Graph) {
	t.Helper()
	alice := user("alice")
	bob := user("bob")
	envA := environment(alice, "prod")
	envB := environment(bob, "prod")

	a, err := FromEnvelopes(Envelope{Fact: alice, Signatures: []signing.FactSignature{sig("a")}}, Envelope{Fact: envA})
	require.NoError(t, err)
	b, err := FromEnvelopes(Envelope{Fact: alice, Signatures: []signing.FactSignature{sig("b")}}, Envelope{Fact: bob})
	require.NoError(t, err)
	c, err := FromEnvelopes(Envelope{Fact: bob}, Envelope{Fact: envB, Signatures: []signing.FactSignature{sig("c")}})
	require.NoError(t, err)
	return a, b, c
}

func TestUnionProperties(t *testing.T) {
	a, b, c := unionFixtures(t)

	t.Run("commutative", func(t *testing.T) {
		assert.True(t, a.Union(b).Equal(b.Union(a)))
	})
	t.Run("associative", func(t *testing.T) {
		assert.True(t, a.Union(b).Union(c).Equal(a.Union(b.Union(c))))
	})
	t.Run("idempotent", func(t *testing.T) {
		assert.True(t, a.Union(a).Equal(a))
		ab := a.Union(b)
		assert.True(t, ab.Union(b).Equal(ab))
	})
	t.Run("signatures merged", func(t *testing.T) {
		ab := a.Union(b)
		assert.ElementsMatch(t,
			[]signing.FactSignature{sig("a"), sig("b")},
			ab.GetSignatures(user("alice").Reference()))
	})
	t.Run("empty is identity", func(t *testing.T) {
		assert.True(t, Empty().Union(a).Equal(a))
		assert.True(t, a.Union(Empty()).Equal(a))
	})
}

func TestEqualIgnoresOrderButNotSignatures(t *testing.T) {
	alice := user("alice")
	bob := user("bob")
	g1 := mustAdd(t, Empty(), alice, bob)
	g2 := mustAdd(t, Empty(), bob, alice)
	assert.True(t, g1.Equal(g2))

	g3, err := g2.Add(Envelope{Fact: bob, Signatures: []signing.FactSignature{sig("b")}})
	require.NoError(t, err)
	assert.False(t, g1.Equal(g3))
}

func TestSuccessors(t *testing.T) {
	alice := user("alice")
	prod := environment(alice, "prod")
	staging := environment(alice, "staging")
	del := deleted(prod)
	g := mustAdd(t, Empty(), alice, prod, staging, del)

	assert.Equal(t, []fact.Reference{prod.Reference(), staging.Reference()}, g.Successors(alice.Reference(), "creator"))
	assert.Empty(t, g.Successors(alice.Reference(), "owner"))
	assert.Equal(t, []fact.Reference{del.Reference()}, g.Successors(prod.Reference(), "environment"))
	assert.Equal(t, []fact.Reference{del.Reference()}, g.Successors(prod.Reference(), ""))
}

func TestClosure(t *testing.T) {
	alice := user("alice")
	bob := user("bob")
	prod := environment(alice, "prod")
	del := deleted(prod)
	g := mustAdd(t, Empty(), alice, bob, prod, del)
	g, err := g.Add(Envelope{Fact: prod, Signatures: []signing.FactSignature{sig("a")}})
	require.NoError(t, err)

	sub, err := g.Closure(del.Reference())
	require.NoError(t, err)
	assert.Equal(t, []fact.Reference{alice.Reference(), prod.Reference(), del.Reference()}, sub.References())
	assert.Equal(t, []signing.FactSignature{sig("a")}, sub.GetSignatures(prod.Reference()))

	_, err = g.Closure(user("carol").Reference())
	assert.True(t, IsNotFound(err))

	none, err := g.Closure()
	require.NoError(t, err)
	assert.Equal(t, 0, none.Len())
}

func TestDeepChainsFlatten(t *testing.T) {
	root := user("root")
	g := mustAdd(t, Empty(), root)

	var envs []fact.Fact
	for i := 0; i < 3*maxDepth; i++ {
		env := environment(root, fmt.Sprintf("env-%02d", i))
		envs = append(envs, env)
		g = mustAdd(t, g, env)
		assert.LessOrEqual(t, g.depth, maxDepth)
	}

	assert.Equal(t, len(envs)+1, g.Len())
	succ := g.Successors(root.Reference(), "creator")
	require.Len(t, succ, len(envs))
	for i, env := range envs {
		assert.Equal(t, env.Reference(), succ[i])
		seq, ok := g.Seq(env.Reference())
		require.True(t, ok)
		assert.Equal(t, i+1, seq)
	}
}

func TestConcurrentReaders(t *testing.T) {
	root := user("root")
	g := mustAdd(t, Empty(), root)
	for i := 0; i < 20; i++ {
		g = mustAdd(t, g, environment(root, fmt.Sprintf("env-%d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Len(t, g.Successors(root.Reference(), "creator"), 20)
		}()
	}
	wg.Wait()
}
