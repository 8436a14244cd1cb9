// Package singleflight coalesces duplicate concurrent operations so that
// at most one is in flight per key. Every caller that joins while the
// operation is pending receives the same result and the same error value,
// which keeps a thundering herd of identical lookups down to exactly one
// piece of real work.
//
// This is purely a coalescing primitive: no retries, no timeouts. Callers
// layer those on top if they need them.
package singleflight

import "sync"

// call tracks one in-flight operation and its eventual settlement.
type call[V any] struct {
	wg  sync.WaitGroup
	val V
	err error
}

// Group coalesces concurrent calls by key. The zero value is not usable;
// create one with New.
type Group[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*call[V]
}

// New returns an empty Group.
func New[K comparable, V any]() *Group[K, V] {
	return &Group[K, V]{calls: make(map[K]*call[V])}
}

// Do executes fn, making sure only one execution is in flight for key at a
// time. Concurrent callers with the same key wait for the original call
// to settle and receive the identical value and error. Once settled, the
// key is dropped so a later Do starts fresh work.
func (g *Group[K, V]) Do(key K, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err
	}

	c := new(call[V])
	c.wg.Add(1)
	g.calls[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()
	c.wg.Done()

	// Delete-on-settle must only remove our own entry. A Forget between
	// start and settlement may already have replaced it.
	g.mu.Lock()
	if cur, ok := g.calls[key]; ok && cur == c {
		delete(g.calls, key)
	}
	g.mu.Unlock()

	return c.val, c.err
}

// Forget drops tracking for key. An operation already started keeps
// running and still settles for the waiters it has; Forget only makes the
// next Do with this key start fresh work instead of joining it.
func (g *Group[K, V]) Forget(key K) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
}

// Clear drops tracking for every key. In-flight operations still settle
// for their existing waiters.
func (g *Group[K, V]) Clear() {
	g.mu.Lock()
	g.calls = make(map[K]*call[V])
	g.mu.Unlock()
}

// Stats reports the current in-flight state. Mainly useful for leak
// detection in tests: after every Do has settled, InFlight should be back
// to zero.
type Stats[K comparable] struct {
	InFlight int
	Keys     []K
}

// Stats returns a snapshot of the in-flight calls.
func (g *Group[K, V]) Stats() Stats[K] {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Stats[K]{InFlight: len(g.calls)}
	for k := range g.calls {
		s.Keys = append(s.Keys, k)
	}
	return s
}
