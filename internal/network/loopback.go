package network

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/roach88/factsync/internal/authoring"
	"github.com/roach88/factsync/internal/codec"
	"github.com/roach88/factsync/internal/distribution"
	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/signing"
	"github.com/roach88/factsync/internal/spec"
)

const defaultPageSize = 100

// Loopback serves a local authority as if it were a remote replica, for one
// fixed remote principal. Feeds are filtered by distribution rules, and
// graphs cross the boundary CBOR-encoded in both directions.
//
// Bookmarks are the decimal insertion position in the served graph after
// the last delivered fact. A feed whose specification has no distribution
// rule answers BookmarkDone.
type Loopback struct {
	authority    *authoring.Authority
	distribution *distribution.Rules
	principal    *signing.Principal
	pageSize     int
	ids          IDGenerator
	logger       *slog.Logger

	mu    sync.Mutex
	feeds map[string]feed
}

// LoopbackOption configures a Loopback.
type LoopbackOption func(*Loopback)

// WithPageSize bounds the references returned per FetchFeed call.
func WithPageSize(n int) LoopbackOption {
	return func(l *Loopback) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithIDGenerator sets the subscription identifier source.
func WithIDGenerator(g IDGenerator) LoopbackOption {
	return func(l *Loopback) {
		l.ids = g
	}
}

// WithLoopbackLogger sets the logger. The default is slog.Default().
func WithLoopbackLogger(logger *slog.Logger) LoopbackOption {
	return func(l *Loopback) {
		l.logger = logger
	}
}

// NewLoopback serves authority to principal. A nil principal only sees
// facts shared with everyone.
func NewLoopback(authority *authoring.Authority, rules *distribution.Rules, principal *signing.Principal, opts ...LoopbackOption) *Loopback {
	if rules == nil {
		rules = distribution.NewRules()
	}
	l := &Loopback{
		authority:    authority,
		distribution: rules,
		principal:    principal,
		pageSize:     defaultPageSize,
		ids:          UUIDv7Generator{},
		logger:       slog.Default(),
		feeds:        make(map[string]feed),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Feeds registers and returns the single feed for s at givens.
func (l *Loopback) Feeds(ctx context.Context, s spec.Specification, givens []fact.Reference) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(givens) != len(s.Given) {
		return nil, fmt.Errorf("feeds: specification takes %d givens, got %d", len(s.Given), len(givens))
	}
	id := FeedID(s, givens)

	l.mu.Lock()
	l.feeds[id] = feed{specification: s, givens: append([]fact.Reference(nil), givens...)}
	l.mu.Unlock()

	return []string{id}, nil
}

// FetchFeed returns up to the page size of references visible to the
// principal and positioned after bookmark.
func (l *Loopback) FetchFeed(ctx context.Context, feedID, bookmark string) (FeedResponse, error) {
	l.mu.Lock()
	f, ok := l.feeds[feedID]
	l.mu.Unlock()
	if !ok {
		return FeedResponse{}, fmt.Errorf("fetch %s: %w", feedID, ErrUnknownFeed)
	}
	if bookmark == BookmarkDone || len(l.distribution.Applicable(f.specification)) == 0 {
		return FeedResponse{Bookmark: BookmarkDone}, nil
	}

	start, err := parseBookmark(bookmark)
	if err != nil {
		return FeedResponse{}, fmt.Errorf("fetch %s: %w", feedID, err)
	}

	served := l.authority.Head().Load()
	visible, err := l.distribution.Filter(ctx, served, f.specification, f.givens, l.principal)
	if err != nil {
		return FeedResponse{}, fmt.Errorf("fetch %s: %w", feedID, err)
	}

	resp := FeedResponse{Bookmark: strconv.Itoa(start)}
	for _, ref := range visible.TopologicalOrder() {
		seq, _ := served.Seq(ref)
		if seq < start {
			continue
		}
		if len(resp.References) == l.pageSize {
			break
		}
		resp.References = append(resp.References, ref)
		resp.Bookmark = strconv.Itoa(seq + 1)
	}

	l.logger.Debug("feed page served",
		"feed", feedID,
		"bookmark", bookmark,
		"references", len(resp.References),
	)
	return resp, nil
}

// Load returns the predecessor closure of refs after a CBOR round trip.
func (l *Loopback) Load(ctx context.Context, refs []fact.Reference) (*graph.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	closure, err := l.authority.Head().Load().Closure(refs...)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return roundTrip(closure)
}

// Save hands g to the authority's Receive after a CBOR round trip.
// Rejected facts are logged, not returned.
func (l *Loopback) Save(ctx context.Context, g *graph.Graph) error {
	received, err := roundTrip(g)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	receipt, err := l.authority.Receive(ctx, received)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if len(receipt.Rejected) > 0 {
		l.logger.Warn("saved graph partially rejected",
			"accepted", len(receipt.Accepted),
			"rejected", len(receipt.Rejected),
		)
	}
	return nil
}

// StreamFeed polls the feed whenever the served head changes.
func (l *Loopback) StreamFeed(ctx context.Context, feedID, bookmark string, onResponse func(FeedResponse), onError func(error)) (*Subscription, error) {
	l.mu.Lock()
	_, ok := l.feeds[feedID]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("stream %s: %w", feedID, ErrUnknownFeed)
	}

	sub := newSubscription(ctx, l.ids.Generate())
	go sub.run(l.authority.Head(), func(ctx context.Context) (FeedResponse, error) {
		resp, err := l.FetchFeed(ctx, feedID, bookmark)
		if err == nil && !resp.CaughtUp() {
			bookmark = resp.Bookmark
		}
		return resp, err
	}, onResponse, onError)

	l.logger.Debug("feed stream opened", "feed", feedID, "subscription", sub.ID())
	return sub, nil
}

func parseBookmark(bookmark string) (int, error) {
	if bookmark == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(bookmark)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid bookmark %q", bookmark)
	}
	return n, nil
}

func roundTrip(g *graph.Graph) (*graph.Graph, error) {
	var buf bytes.Buffer
	if err := codec.MarshalGraph(&buf, g); err != nil {
		return nil, err
	}
	return codec.UnmarshalGraph(&buf)
}
