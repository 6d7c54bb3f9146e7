package authoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factsync/internal/authorization"
	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/ir"
	"github.com/roach88/factsync/internal/signing"
)

func TestReceive_AcceptsSignedFacts(t *testing.T) {
	ctx := context.Background()
	alice, _ := principals(t)

	remote := newAuthority(t)
	env := environment(alice.Reference(), "prod")
	_, err := remote.Facts(ctx, alice, alice.UserFact(), env)
	require.NoError(t, err)

	s := openStore(t)
	local := newAuthority(t, WithStore(s))
	receipt, err := local.Receive(ctx, remote.Head().Load())
	require.NoError(t, err)

	assert.Equal(t, []fact.Reference{alice.Reference(), env.Reference()}, receipt.Accepted)
	assert.Empty(t, receipt.Merged)
	assert.Empty(t, receipt.Rejected)
	assert.True(t, remote.Head().Load().Equal(local.Head().Load()))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReceive_AuthorizesBySigner(t *testing.T) {
	ctx := context.Background()
	alice, bob := principals(t)

	// The remote peer runs permissive rules; bob creates an environment
	// naming alice as creator.
	remote := New(nil, authorization.NewRules().Any(signing.UserType).Any("Environment"), WithLogger(discardLog))
	env := environment(alice.Reference(), "prod")
	_, err := remote.Facts(ctx, bob, alice.UserFact(), env)
	require.NoError(t, err)

	local := newAuthority(t)
	receipt, err := local.Receive(ctx, remote.Head().Load())
	require.NoError(t, err)

	assert.Equal(t, []fact.Reference{alice.Reference()}, receipt.Accepted)
	require.Len(t, receipt.Rejected, 1)
	assert.Equal(t, env.Reference(), receipt.Rejected[0].Reference)
	assert.True(t, authorization.IsDenied(receipt.Rejected[0].Err))
	assert.False(t, local.Head().Load().Contains(env.Reference()))
}

func TestReceive_BadSignatureRejectsFactAndSuccessors(t *testing.T) {
	ctx := context.Background()
	alice, bob := principals(t)

	user := alice.UserFact()
	env := environment(alice.Reference(), "prod")
	goodSig, err := alice.Sign(env)
	require.NoError(t, err)

	// bob's signature over a different fact does not verify for user.
	otherSig, err := bob.Sign(bob.UserFact())
	require.NoError(t, err)
	forged := signing.FactSignature{PublicKey: alice.PublicKey(), Signature: otherSig.Signature}

	remote, err := graph.FromEnvelopes(
		graph.Envelope{Fact: user, Signatures: []signing.FactSignature{forged}},
		graph.Envelope{Fact: env, Signatures: []signing.FactSignature{goodSig}},
	)
	require.NoError(t, err)

	local := newAuthority(t)
	receipt, err := local.Receive(ctx, remote)
	require.NoError(t, err)

	assert.Empty(t, receipt.Accepted)
	require.Len(t, receipt.Rejected, 2)
	assert.True(t, errors.Is(receipt.Rejected[0].Err, ErrBadSignature))
	assert.True(t, graph.IsDanglingPredecessor(receipt.Rejected[1].Err))
	assert.Equal(t, 0, local.Head().Load().Len())
}

func TestReceive_MergesSignaturesOfKnownFacts(t *testing.T) {
	ctx := context.Background()
	alice, bob := principals(t)

	local := newAuthority(t)
	_, err := local.Fact(ctx, alice.UserFact(), alice)
	require.NoError(t, err)

	remote := newAuthority(t)
	_, err = remote.Fact(ctx, alice.UserFact(), bob)
	require.NoError(t, err)

	receipt, err := local.Receive(ctx, remote.Head().Load())
	require.NoError(t, err)
	assert.Empty(t, receipt.Accepted)
	assert.Equal(t, []fact.Reference{alice.Reference()}, receipt.Merged)
	assert.Len(t, local.Head().Load().GetSignatures(alice.Reference()), 2)

	// Receiving the same graph again changes nothing.
	receipt, err = local.Receive(ctx, remote.Head().Load())
	require.NoError(t, err)
	assert.Empty(t, receipt.Merged)
}

func TestReceive_IntegrityErrorAbortsEverything(t *testing.T) {
	ctx := context.Background()
	alice, bob := principals(t)

	forged := fact.Unverified(bob.Reference(), fact.Fields{"publicKey": ir.IRString("mallory")}, nil)
	remote, err := graph.FromEnvelopes(
		graph.Envelope{Fact: alice.UserFact()},
		graph.Envelope{Fact: forged},
	)
	require.NoError(t, err)

	local := newAuthority(t)
	_, err = local.Receive(ctx, remote)
	require.Error(t, err)
	assert.True(t, fact.IsIntegrityError(err))
	assert.Equal(t, 0, local.Head().Load().Len())
}

func TestReceive_Empty(t *testing.T) {
	local := newAuthority(t)

	receipt, err := local.Receive(context.Background(), graph.Empty())
	require.NoError(t, err)
	assert.Equal(t, Receipt{}, receipt)
}
