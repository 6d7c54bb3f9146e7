package network

import (
	"context"
	"sync"

	"github.com/roach88/factsync/internal/graph"
)

// Subscription is an open StreamFeed. Close stops delivery.
type Subscription struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newSubscription(parent context.Context, id string) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	return &Subscription{id: id, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Done is closed once delivery has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close stops delivery and waits for the delivery goroutine to exit. No
// callback runs after Close returns. Close must not be called from a
// callback.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// run fetches until caught up, then waits for the head to change. The
// Changed channel is taken before fetching so a publish during the fetch is
// never missed.
func (s *Subscription) run(head *graph.Head, fetch func(context.Context) (FeedResponse, error), onResponse func(FeedResponse), onError func(error)) {
	defer close(s.done)
	for {
		changed := head.Changed()
		for {
			resp, err := fetch(s.ctx)
			if s.ctx.Err() != nil {
				return
			}
			if err != nil {
				if onError != nil {
					onError(err)
				}
				break
			}
			if len(resp.References) > 0 && onResponse != nil {
				onResponse(resp)
			}
			if resp.CaughtUp() {
				break
			}
		}
		select {
		case <-s.ctx.Done():
			return
		case <-changed:
		}
	}
}
