package graph

import (
	"sync"
	"sync/atomic"
)

// Head is the published "current graph" shared by an authority and its
// readers. Readers Load a snapshot without locking; writers Update with
// compare-and-swap so observers see either the old or the new graph, never
// a partial merge.
type Head struct {
	current atomic.Pointer[Graph]

	mu      sync.Mutex
	changed chan struct{}
}

// NewHead returns a head publishing g (Empty when nil).
func NewHead(g *Graph) *Head {
	if g == nil {
		g = Empty()
	}
	h := &Head{changed: make(chan struct{})}
	h.current.Store(g)
	return h
}

// Load returns the current snapshot.
func (h *Head) Load() *Graph {
	return h.current.Load()
}

// Update applies fn to the current snapshot and publishes the result. fn may
// run more than once if another writer wins the race, so it must be pure.
// An error from fn leaves the head unchanged.
func (h *Head) Update(fn func(*Graph) (*Graph, error)) (*Graph, error) {
	for {
		old := h.current.Load()
		next, err := fn(old)
		if err != nil {
			return old, err
		}
		if next == old {
			return old, nil
		}
		if h.current.CompareAndSwap(old, next) {
			h.notify()
			return next, nil
		}
	}
}

// Changed returns a channel closed at the next successful publish.
func (h *Head) Changed() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.changed
}

func (h *Head) notify() {
	h.mu.Lock()
	close(h.changed)
	h.changed = make(chan struct{})
	h.mu.Unlock()
}
