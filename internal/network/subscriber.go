package network

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/factsync/internal/authoring"
	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/spec"
)

// Subscriber pulls feeds from a Network into a local authority and pushes
// local facts back. It remembers one bookmark per feed.
type Subscriber struct {
	net    Network
	local  *authoring.Authority
	logger *slog.Logger

	mu        sync.Mutex
	bookmarks map[string]string
}

// NewSubscriber returns a subscriber reading net into local.
func NewSubscriber(net Network, local *authoring.Authority, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		net:       net,
		local:     local,
		logger:    logger,
		bookmarks: make(map[string]string),
	}
}

// Bookmark returns the stored bookmark of feed.
func (s *Subscriber) Bookmark(feed string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookmarks[feed]
}

// Fetch reads every feed serving sp at givens until caught up, loads the
// new references and receives them locally. Bookmarks advance only after
// the facts have been received.
func (s *Subscriber) Fetch(ctx context.Context, sp spec.Specification, givens ...fact.Reference) (authoring.Receipt, error) {
	feeds, err := s.net.Feeds(ctx, sp, givens)
	if err != nil {
		return authoring.Receipt{}, fmt.Errorf("fetch: %w", err)
	}

	var total authoring.Receipt
	for _, feed := range feeds {
		receipt, err := s.fetchFeed(ctx, feed)
		if err != nil {
			return total, err
		}
		total.Accepted = append(total.Accepted, receipt.Accepted...)
		total.Merged = append(total.Merged, receipt.Merged...)
		total.Rejected = append(total.Rejected, receipt.Rejected...)
	}
	return total, nil
}

func (s *Subscriber) fetchFeed(ctx context.Context, feed string) (authoring.Receipt, error) {
	bookmark := s.Bookmark(feed)
	if bookmark == BookmarkDone {
		return authoring.Receipt{}, nil
	}

	var refs []fact.Reference
	for {
		resp, err := s.net.FetchFeed(ctx, feed, bookmark)
		if err != nil {
			return authoring.Receipt{}, fmt.Errorf("fetch feed %s: %w", feed, err)
		}
		refs = append(refs, resp.References...)
		bookmark = resp.Bookmark
		if resp.CaughtUp() {
			break
		}
	}

	var receipt authoring.Receipt
	if len(refs) > 0 {
		g, err := s.net.Load(ctx, refs)
		if err != nil {
			return authoring.Receipt{}, fmt.Errorf("load feed %s: %w", feed, err)
		}
		receipt, err = s.local.Receive(ctx, g)
		if err != nil {
			return authoring.Receipt{}, fmt.Errorf("receive feed %s: %w", feed, err)
		}
	}

	s.mu.Lock()
	s.bookmarks[feed] = bookmark
	s.mu.Unlock()

	s.logger.Debug("feed fetched",
		"feed", feed,
		"references", len(refs),
		"accepted", len(receipt.Accepted),
		"bookmark", bookmark,
	)
	return receipt, nil
}

// Push saves the predecessor closure of refs from the local head to the
// network.
func (s *Subscriber) Push(ctx context.Context, refs ...fact.Reference) error {
	closure, err := s.local.Head().Load().Closure(refs...)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if err := s.net.Save(ctx, closure); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}
