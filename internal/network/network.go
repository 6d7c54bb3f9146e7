// Package network is the boundary between a local authority and its peers.
//
// A Network exposes feeds: one feed per specification and given tuple, read
// incrementally with opaque bookmarks. Readers fetch pages of references,
// load their predecessor closure and hand the result to
// authoring.Authority.Receive. The core never retries; a failed call is
// reported and the caller decides.
package network

import (
	"context"
	"errors"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/spec"
)

// BookmarkDone signals that a feed has nothing further to deliver for now.
const BookmarkDone = "done"

// ErrUnknownFeed is returned for a feed identifier never issued by Feeds.
var ErrUnknownFeed = errors.New("unknown feed")

// FeedResponse is one page of a feed.
type FeedResponse struct {
	// References are newly visible facts in topological order. They are not
	// necessarily present in the caller's graph yet.
	References []fact.Reference
	// Bookmark resumes the feed after this page.
	Bookmark string
}

// CaughtUp reports whether the page ends the current pass over a feed.
func (r FeedResponse) CaughtUp() bool {
	return len(r.References) == 0 || r.Bookmark == BookmarkDone
}

// Network is a remote replica as seen by a client.
type Network interface {
	// Feeds returns the feed identifiers serving s anchored at givens.
	Feeds(ctx context.Context, s spec.Specification, givens []fact.Reference) ([]string, error)

	// FetchFeed returns the page after bookmark. An empty bookmark starts
	// from the beginning.
	FetchFeed(ctx context.Context, feed, bookmark string) (FeedResponse, error)

	// StreamFeed delivers pages as the feed grows until the subscription is
	// closed or ctx ends. onResponse and onError run on a separate goroutine.
	StreamFeed(ctx context.Context, feed, bookmark string, onResponse func(FeedResponse), onError func(error)) (*Subscription, error)

	// Load returns the predecessor closure of refs.
	Load(ctx context.Context, refs []fact.Reference) (*graph.Graph, error)

	// Save uploads a topologically closed subgraph.
	Save(ctx context.Context, g *graph.Graph) error
}
