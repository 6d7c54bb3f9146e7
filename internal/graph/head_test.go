package graph

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadUpdateAndChanged(t *testing.T) {
	h := NewHead(nil)
	assert.Equal(t, 0, h.Load().Len())

	changed := h.Changed()
	alice := user("alice")
	g, err := h.Update(func(g *Graph) (*Graph, error) {
		return g.AddFact(alice)
	})
	require.NoError(t, err)
	assert.Same(t, g, h.Load())

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("Changed not signalled")
	}
}

func TestHeadUpdateErrorLeavesSnapshot(t *testing.T) {
	h := NewHead(nil)
	before := h.Load()
	changed := h.Changed()

	_, err := h.Update(func(g *Graph) (*Graph, error) {
		return g.AddFact(environment(user("alice"), "prod"))
	})
	assert.True(t, IsDanglingPredecessor(err))
	assert.Same(t, before, h.Load())

	select {
	case <-changed:
		t.Fatal("no publish expected")
	default:
	}
}

func TestHeadUpdateNoChange(t *testing.T) {
	h := NewHead(nil)
	boom := errors.New("boom")
	_, err := h.Update(func(g *Graph) (*Graph, error) { return g, boom })
	assert.ErrorIs(t, err, boom)

	g, err := h.Update(func(g *Graph) (*Graph, error) { return g, nil })
	require.NoError(t, err)
	assert.Same(t, Empty(), g)
}

func TestHeadConcurrentWriters(t *testing.T) {
	root := user("root")
	h := NewHead(nil)
	_, err := h.Update(func(g *Graph) (*Graph, error) { return g.AddFact(root) })
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			env := environment(root, fmt.Sprintf("env-%d", i))
			_, err := h.Update(func(g *Graph) (*Graph, error) { return g.AddFact(env) })
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, writers+1, h.Load().Len())
	assert.Len(t, h.Load().Successors(root.Reference(), "creator"), writers)
}
