package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/ir"
	"github.com/roach88/factsync/internal/signing"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type testFacts struct {
	user, env, other, release fact.Fact
}

// createTestGraph builds user <- env <- release, plus an unrelated other
// environment also created by user.
func createTestGraph(t *testing.T) (*graph.Graph, testFacts) {
	t.Helper()
	var f testFacts
	f.user = fact.MustNew("Jinaga.User", fact.Fields{"publicKey": ir.IRString("alice")})
	f.env = fact.MustNew("Environment",
		fact.Fields{"identifier": ir.IRString("prod")},
		fact.Single("creator", f.user.Reference()))
	f.other = fact.MustNew("Environment",
		fact.Fields{"identifier": ir.IRString("dev")},
		fact.Single("creator", f.user.Reference()))
	f.release = fact.MustNew("Release",
		fact.Fields{"version": ir.IRNumber(2)},
		fact.Single("environment", f.env.Reference()),
		fact.Multiple("prior"))

	g, err := graph.FromEnvelopes(
		graph.Envelope{Fact: f.user},
		graph.Envelope{Fact: f.env, Signatures: []signing.FactSignature{{PublicKey: "alice", Signature: "c2ln"}}},
		graph.Envelope{Fact: f.other},
		graph.Envelope{Fact: f.release},
	)
	if err != nil {
		t.Fatalf("FromEnvelopes() failed: %v", err)
	}
	return g, f
}
