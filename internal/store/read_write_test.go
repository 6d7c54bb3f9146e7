package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/ir"
	"github.com/roach88/factsync/internal/signing"
)

func TestSaveReadAll_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g, _ := createTestGraph(t)

	require.NoError(t, s.Save(ctx, g))

	loaded, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.True(t, g.Equal(loaded))
	assert.Equal(t, g.TopologicalOrder(), loaded.TopologicalOrder(), "save order preserved")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSave_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g, _ := createTestGraph(t)

	require.NoError(t, s.Save(ctx, g))
	require.NoError(t, s.Save(ctx, g))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	var edges int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM edges").Scan(&edges))
	assert.Equal(t, 3, edges, "env, other and release each have one predecessor edge")
}

func TestSave_MergesSignatures(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g, f := createTestGraph(t)
	require.NoError(t, s.Save(ctx, g))

	more, err := graph.FromEnvelopes(
		graph.Envelope{Fact: f.user},
		graph.Envelope{Fact: f.env, Signatures: []signing.FactSignature{{PublicKey: "bob", Signature: "b3Ro"}}},
	)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, more))

	loaded, err := s.Load(ctx, f.env.Reference())
	require.NoError(t, err)
	assert.ElementsMatch(t, []signing.FactSignature{
		{PublicKey: "alice", Signature: "c2ln"},
		{PublicKey: "bob", Signature: "b3Ro"},
	}, loaded.GetSignatures(f.env.Reference()))
}

func TestLoad_EmptyStore(t *testing.T) {
	s := createTestStore(t)
	_, f := createTestGraph(t)

	_, err := s.Load(context.Background(), f.env.Reference())
	assert.True(t, graph.IsNotFound(err))
}

func TestLoad_PredecessorClosure(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g, f := createTestGraph(t)
	require.NoError(t, s.Save(ctx, g))

	tests := []struct {
		name     string
		refs     []fact.Reference
		expected []fact.Reference
	}{
		{
			name:     "leaf",
			refs:     []fact.Reference{f.user.Reference()},
			expected: []fact.Reference{f.user.Reference()},
		},
		{
			name:     "release pulls environment and user",
			refs:     []fact.Reference{f.release.Reference()},
			expected: []fact.Reference{f.user.Reference(), f.env.Reference(), f.release.Reference()},
		},
		{
			name:     "two roots share a predecessor",
			refs:     []fact.Reference{f.other.Reference(), f.env.Reference()},
			expected: []fact.Reference{f.user.Reference(), f.env.Reference(), f.other.Reference()},
		},
		{
			name:     "no refs",
			refs:     nil,
			expected: []fact.Reference{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loaded, err := s.Load(ctx, tt.refs...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, loaded.TopologicalOrder())
		})
	}
}

func TestLoad_NotFound(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g, f := createTestGraph(t)
	require.NoError(t, s.Save(ctx, g))

	missing := fact.MustNew("Environment", fact.Fields{"identifier": ir.IRString("qa")},
		fact.Single("creator", f.user.Reference()))

	_, err := s.Load(ctx, f.env.Reference(), missing.Reference())
	require.Error(t, err)
	assert.True(t, graph.IsNotFound(err))
}

func TestLoad_DetectsTamperedRow(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g, f := createTestGraph(t)
	require.NoError(t, s.Save(ctx, g))

	// Give the user row the environment's fields.
	_, err := s.db.Exec(`UPDATE facts SET fields = (SELECT fields FROM facts WHERE hash = ?) WHERE hash = ?`,
		f.env.Reference().Hash, f.user.Reference().Hash)
	require.NoError(t, err)

	_, err = s.Load(ctx, f.user.Reference())
	require.Error(t, err)
	assert.True(t, fact.IsIntegrityError(err))
}

func TestContains(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	g, f := createTestGraph(t)

	found, err := s.Contains(ctx, f.user.Reference())
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save(ctx, g))

	found, err = s.Contains(ctx, f.user.Reference())
	require.NoError(t, err)
	assert.True(t, found)
}

func TestReadAll_Empty(t *testing.T) {
	s := createTestStore(t)

	g, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
}
