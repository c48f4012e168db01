// Package infra holds small concurrency helpers shared by the service
// components.
package infra

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Group suppresses duplicate concurrent work per key. Callers that arrive
// while a call for the same key is in flight wait for it and share its
// result.
type Group[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*call[V]

	hits   atomic.Uint64
	misses atomic.Uint64
}

type call[V any] struct {
	wg  sync.WaitGroup
	val V
	err error
}

// Do runs fn once per key at a time. shared reports whether the result was
// produced by another caller's fn.
func (g *Group[K, V]) Do(key K, fn func() (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call[V])
	}
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		g.hits.Add(1)
		c.wg.Wait()
		return c.val, c.err, true
	}
	c := new(call[V])
	c.wg.Add(1)
	g.calls[key] = c
	g.mu.Unlock()
	g.misses.Add(1)

	g.doCall(c, key, fn)
	return c.val, c.err, false
}

func (g *Group[K, V]) doCall(c *call[V], key K, fn func() (V, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("singleflight: panic: %v", r)
		}
		g.mu.Lock()
		delete(g.calls, key)
		g.mu.Unlock()
		c.wg.Done()
	}()
	c.val, c.err = fn()
}

// Forget drops the in-flight entry for key so the next Do runs fn again.
func (g *Group[K, V]) Forget(key K) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
}

// GroupStats counts shared and executed calls.
type GroupStats struct {
	Hits   uint64
	Misses uint64
}

// Stats returns the group's counters.
func (g *Group[K, V]) Stats() GroupStats {
	return GroupStats{Hits: g.hits.Load(), Misses: g.misses.Load()}
}
